package handlers

import (
	"github.com/hrygo/taskmesh/engine/handler"
	"github.com/hrygo/taskmesh/engine/llm"
	"github.com/hrygo/taskmesh/store"
)

// RegisterDefaults wires every reference handler in this package into
// reg under its spec.md §3 task-type tag. svc may be nil if no LLM is
// configured, in which case SEARCH/SUMMARIZE/ANALYZE/CODE_GENERATE are
// left unregistered — VALIDATE, PROVISION_INFRA, and SYNTHESIZE need
// no LLM and are always registered. PLAN is not registered here; the
// caller registers the planner separately.
func RegisterDefaults(reg *handler.Registry, svc llm.Service) {
	if svc != nil {
		reg.Register(store.TaskTypeSearch, Search(svc))
		reg.Register(store.TaskTypeSummarize, Summarize(svc))
		reg.Register(store.TaskTypeAnalyze, Analyze(svc))
		reg.Register(store.TaskTypeCodeGenerate, CodeGenerate(svc))
	}
	reg.Register(store.TaskTypeValidate, Validate)
	reg.Register(store.TaskTypeProvisionInfra, ProvisionInfra)
	reg.Register(store.TaskTypeSynthesize, Synthesize)
}

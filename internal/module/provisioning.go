package module

import (
	"context"
	"fmt"

	"git.home.luguber.info/inful/loadcore/internal/config"
	ferrors "git.home.luguber.info/inful/loadcore/internal/foundation/errors"
)

// Config keys shared by provisioning and executors.
const (
	KeyProvisioning    = "provisioning"
	KeyExecution       = "execution"
	KeyExecutor        = "executor"
	KeySettings        = "settings"
	KeyDefaultExecutor = "default-executor"
)

// Provisioning acquires the resources executors run on and owns the
// executors for the run.
type Provisioning interface {
	Module
	Executors() []Executor
}

// ProvisioningBase reads the execution list and instantiates one executor
// per entry. Provisioning modules embed it and call PrepareExecutors from
// their Prepare.
type ProvisioningBase struct {
	Base
	executors []Executor
}

func (p *ProvisioningBase) Executors() []Executor {
	return p.executors
}

// PrepareExecutors instantiates the executor of every execution entry.
// self is the embedding provisioning module, handed to each executor.
func (p *ProvisioningBase) PrepareExecutors(ctx context.Context, self Provisioning) error {
	cfg := p.Host().Config()
	root := cfg.Root()

	if !root.Has(KeyExecution) {
		return ferrors.MissingConfigError("No execution is configured")
	}
	settings, err := root.GetMap(KeySettings)
	if err != nil {
		return err
	}
	defaultExecutor, err := settings.GetString(KeyDefaultExecutor, "")
	if err != nil {
		return err
	}

	executions, err := Executions(root)
	if err != nil {
		return err
	}
	if len(executions) == 0 {
		return ferrors.MissingConfigError("No execution is configured")
	}

	for i, execution := range executions {
		alias, err := execution.GetString(KeyExecutor, defaultExecutor)
		if err != nil {
			return err
		}
		if alias == "" {
			return ferrors.ConfigError("Cannot determine executor type and no default executor").
				WithContext("execution", i).
				Build()
		}
		instance, err := p.Host().InstantiateModule(alias)
		if err != nil {
			return err
		}
		executor, ok := instance.(Executor)
		if !ok {
			return ferrors.CapabilityMismatchError(alias, "executor")
		}
		executor.BindExecution(self, execution)
		p.executors = append(p.executors, executor)
		p.Log().Debug("Executor bound", "executor", alias, "execution", i)
	}
	return ctx.Err()
}

// Executions returns the execution entries of root. A single mapping is
// treated as a one-element list, and scalar list entries are rejected.
func Executions(root *config.Map) ([]*config.Map, error) {
	value, ok := root.Lookup(KeyExecution)
	if !ok || value == nil {
		return nil, nil
	}
	switch v := value.(type) {
	case *config.Map:
		return []*config.Map{v}, nil
	case []any:
		out := make([]*config.Map, 0, len(v))
		for i, item := range v {
			m, ok := item.(*config.Map)
			if !ok {
				return nil, ferrors.TypeMismatchError(fmt.Sprintf("%s[%d]", KeyExecution, i), "a mapping", item)
			}
			out = append(out, m)
		}
		return out, nil
	default:
		return nil, ferrors.TypeMismatchError(KeyExecution, "a mapping or a list", value)
	}
}

// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package directive

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/teradata-labs/jido/pkg/dispatch"
	"github.com/teradata-labs/jido/pkg/jidoerr"
	"github.com/teradata-labs/jido/pkg/signal"
)

// Validate checks one directive for structural correctness. Application-
// time conditions (unknown child tag, self-deregistration) are enforced by
// the agent server.
func Validate(d Directive) error {
	switch v := d.(type) {
	case SetState:
		if v.Attrs == nil {
			return invalid("SetState requires attrs")
		}
	case ReplaceState:
		if v.State == nil {
			return invalid("ReplaceState requires a state map")
		}
	case DeleteKeys:
		if len(v.Keys) == 0 {
			return invalid("DeleteKeys requires at least one key")
		}
	case SetPath:
		if len(v.Path) == 0 {
			return invalid("SetPath requires a non-empty path")
		}
		for _, seg := range v.Path {
			if seg == "" {
				return invalid("SetPath path segments must be non-empty")
			}
		}
	case DeletePath:
		if len(v.Path) == 0 {
			return invalid("DeletePath requires a non-empty path")
		}
	case Emit:
		if v.Signal == nil {
			return invalid("Emit requires a signal")
		}
		// An empty dispatch list is valid: the runtime falls back to the
		// agent's default dispatch target.
		if !v.ToParent {
			if err := dispatch.ValidateOpts(v.Dispatch); err != nil {
				return err
			}
		}
	case Schedule:
		if v.Delay < 0 {
			return invalid("Schedule delay must not be negative")
		}
		if v.Message == nil {
			return invalid("Schedule requires a message signal")
		}
	case Cron:
		if v.JobID == "" {
			return invalid("Cron requires a job id")
		}
		if v.Message == nil {
			return invalid("Cron requires a message signal")
		}
		if _, err := cron.ParseStandard(v.Spec); err != nil {
			return jidoerr.Wrap(jidoerr.KindValidation, "invalid_cron",
				fmt.Sprintf("invalid cron expression %q", v.Spec), err)
		}
		if v.Timezone != "" {
			if _, err := time.LoadLocation(v.Timezone); err != nil {
				return jidoerr.Wrap(jidoerr.KindValidation, "invalid_timezone",
					fmt.Sprintf("unknown timezone %q", v.Timezone), err)
			}
		}
	case CronCancel:
		if v.JobID == "" {
			return invalid("CronCancel requires a job id")
		}
	case SpawnAgent:
		if v.Module == nil {
			return invalid("SpawnAgent requires an agent module")
		}
		if v.Tag == "" {
			return invalid("SpawnAgent requires a tag")
		}
	case StopChild:
		if v.Tag == "" {
			return invalid("StopChild requires a tag")
		}
	case Stop:
		// Reason is optional.
	case Enqueue:
		if v.ActionName == "" {
			return invalid("Enqueue requires an action name")
		}
	case RegisterAction:
		if v.Action == nil || v.Action.Name() == "" {
			return invalid("RegisterAction requires a named action")
		}
	case DeregisterAction:
		if v.ActionName == "" {
			return invalid("DeregisterAction requires an action name")
		}
	case RegisterRoute:
		if err := signal.ValidateType(v.Path); err != nil {
			return err
		}
		if v.ActionName == "" {
			return invalid("RegisterRoute requires an action name")
		}
	case DeregisterRoute:
		if err := signal.ValidateType(v.Path); err != nil {
			return err
		}
	case nil:
		return invalid("directive must not be nil")
	default:
		return invalid(fmt.Sprintf("unknown directive type %T", d))
	}
	return nil
}

// ValidateAll checks a directive list, reporting the first failure with
// its index.
func ValidateAll(ds []Directive) error {
	for i, d := range ds {
		if err := Validate(d); err != nil {
			return fmt.Errorf("directive %d: %w", i, err)
		}
	}
	return nil
}

func invalid(msg string) error {
	return jidoerr.Validation("invalid_directive", msg)
}

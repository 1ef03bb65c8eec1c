package config

import (
	_ "embed"
	"fmt"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/roach88/parceltrack/internal/model"
)

//go:embed schema.cue
var schemaCUE string

// Validate checks s against the settings schema and resolves its time zone.
func Validate(s Settings) error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return model.WrapError(model.ErrCodeConfig, "compile settings schema", err)
	}

	def := schema.LookupPath(cue.ParsePath("#Settings"))
	v := def.Unify(ctx.Encode(s))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return model.WrapError(model.ErrCodeConfig, "invalid settings", err)
	}

	if s.Lock.Lease < s.Lock.Wait {
		return model.NewError(model.ErrCodeConfig, "",
			fmt.Sprintf("lock lease %s shorter than lock wait %s", s.Lock.Lease, s.Lock.Wait))
	}
	if s.Bulk.TimeLimit > 10*time.Minute {
		return model.NewError(model.ErrCodeConfig, "",
			fmt.Sprintf("bulk time limit %s exceeds 10m", s.Bulk.TimeLimit))
	}
	if _, err := s.Location(); err != nil {
		return err
	}
	return nil
}

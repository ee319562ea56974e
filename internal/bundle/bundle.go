// Package bundle loads import bundles: YAML or JSON documents holding both
// collections, validated against an embedded CUE schema before decoding.
//
// Imported data is trusted for shape only. Identifiers may be legacy and
// reference sets may be asymmetric or dangling; the registry migrates and
// reconciles after import.
package bundle

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
	cuejson "cuelang.org/go/encoding/json"
	cueyaml "cuelang.org/go/encoding/yaml"
	"gopkg.in/yaml.v3"

	"github.com/roach88/riskctl/internal/record"
)

//go:embed schema.cue
var schemaSource string

// ErrDuplicateID is returned when two records of one kind share an id.
var ErrDuplicateID = errors.New("duplicate id")

// Bundle is the decoded content of an import file.
type Bundle struct {
	Risks    []record.Risk    `json:"risks"`
	Controls []record.Control `json:"controls"`
}

// ValidationError is a schema violation with its source position.
type ValidationError struct {
	Message string
	Pos     token.Pos
}

func (e *ValidationError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Message)
	}
	return e.Message
}

// ValidationErrors collects every violation found in one document.
type ValidationErrors []*ValidationError

func (es ValidationErrors) Error() string {
	msgs := make([]string, len(es))
	for i, e := range es {
		msgs[i] = e.Error()
	}
	return strings.Join(msgs, "\n")
}

// Load reads and parses path. The format is chosen by extension: .json is
// JSON, anything else is YAML.
func Load(path string) (*Bundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read bundle: %w", err)
	}
	return Parse(path, data)
}

// Parse validates data against the bundle schema and decodes it.
func Parse(filename string, data []byte) (*Bundle, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compile bundle schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Bundle"))

	var doc cue.Value
	if strings.EqualFold(filepath.Ext(filename), ".json") {
		expr, err := cuejson.Extract(filename, data)
		if err != nil {
			return nil, convertCUEError(err, filename)
		}
		doc = ctx.BuildExpr(expr)
	} else {
		file, err := cueyaml.Extract(filename, data)
		if err != nil {
			return nil, convertCUEError(err, filename)
		}
		doc = ctx.BuildFile(file)
	}
	if err := doc.Err(); err != nil {
		return nil, convertCUEError(err, filename)
	}

	unified := def.Unify(doc)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, convertCUEError(err, filename)
	}

	raw, err := unified.MarshalJSON()
	if err != nil {
		return nil, convertCUEError(err, filename)
	}
	var b Bundle
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, fmt.Errorf("decode bundle: %w", err)
	}

	b.normalize()
	if err := b.checkUnique(); err != nil {
		return nil, err
	}
	return &b, nil
}

// normalize cleans reference sets and fills a missing control reference.
func (b *Bundle) normalize() {
	if b.Risks == nil {
		b.Risks = []record.Risk{}
	}
	if b.Controls == nil {
		b.Controls = []record.Control{}
	}
	for i := range b.Risks {
		b.Risks[i].ControlRefs = record.NormalizeRefs(b.Risks[i].ControlRefs)
	}
	for i := range b.Controls {
		c := &b.Controls[i]
		c.RiskRefs = record.NormalizeRefs(c.RiskRefs)
		if c.Reference == "" {
			c.Reference = c.ID
		}
	}
}

func (b *Bundle) checkUnique() error {
	seen := make(map[string]bool, len(b.Risks))
	for _, r := range b.Risks {
		if seen[r.ID] {
			return fmt.Errorf("risk %q: %w", r.ID, ErrDuplicateID)
		}
		seen[r.ID] = true
	}
	// Control ids may legitimately collide in legacy data; migration
	// renumbers them, so only risks are required to be unique.
	return nil
}

// Encode writes b as JSON (format "json") or YAML (anything else).
func Encode(b *Bundle, format string) ([]byte, error) {
	if format == "json" {
		return json.MarshalIndent(b, "", "  ")
	}
	// Round-trip through JSON so YAML uses the same field names.
	raw, err := json.Marshal(b)
	if err != nil {
		return nil, err
	}
	var generic map[string]any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	return yaml.Marshal(generic)
}

// convertCUEError flattens CUE errors into ValidationErrors, preferring a
// position inside the bundle over one inside the schema.
func convertCUEError(err error, filename string) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return &ValidationError{Message: err.Error()}
	}
	out := make(ValidationErrors, 0, len(errs))
	for _, e := range errs {
		ve := &ValidationError{Message: e.Error()}
		for _, pos := range cueerrors.Positions(e) {
			if !ve.Pos.IsValid() || pos.Filename() == filename {
				ve.Pos = pos
			}
			if pos.Filename() == filename {
				break
			}
		}
		out = append(out, ve)
	}
	return out
}

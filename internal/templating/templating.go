// Package templating fills {{ placeholder }} variables in document and
// notification templates. Placeholders are matched case- and
// accent-insensitively; anything that is not a plain variable is evaluated as
// an expr-lang expression over the same variables.
package templating

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gestoria/pkg/textfold"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	gocache "github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"
)

var placeholderRe = regexp.MustCompile(`\{\{([^}]+)\}\}`)

// Unavailable is the marker rendered for a placeholder that cannot be resolved.
func Unavailable(name string) string {
	return `<span style="color: red; font-style: italic;">[` + name + ` no disponible]</span>`
}

// Engine renders templates. Compiled expressions are cached by source text.
type Engine struct {
	programs *gocache.Cache
}

func NewEngine() *Engine {
	return &Engine{programs: gocache.New(time.Hour, 2*time.Hour)}
}

// Render replaces every placeholder in body.
func (e *Engine) Render(body string, vars map[string]interface{}) string {
	env := foldVars(vars)
	return placeholderRe.ReplaceAllStringFunc(body, func(m string) string {
		name := strings.TrimSpace(m[2 : len(m)-2])
		if name == "" {
			return m
		}
		if v, ok := env[textfold.Key(name)]; ok && v != nil {
			return Format(v)
		}
		out, ok := e.eval(name, env)
		if !ok {
			return Unavailable(name)
		}
		return Format(out)
	})
}

func (e *Engine) eval(source string, env map[string]interface{}) (interface{}, bool) {
	program, err := e.compile(source)
	if err != nil {
		return nil, false
	}
	out, err := expr.Run(program, env)
	if err != nil || out == nil {
		return nil, false
	}
	return out, true
}

func (e *Engine) compile(source string) (*vm.Program, error) {
	if cached, ok := e.programs.Get(source); ok {
		return cached.(*vm.Program), nil
	}
	program, err := expr.Compile(source, expr.AllowUndefinedVariables())
	if err != nil {
		return nil, fmt.Errorf("failed to compile expression %q: %w", source, err)
	}
	e.programs.SetDefault(source, program)
	return program, nil
}

// foldVars keys every variable by its folded form so that {{ Razón Social }}
// finds "razon_social". Decimals become float64 so expressions can do arithmetic.
func foldVars(vars map[string]interface{}) map[string]interface{} {
	env := make(map[string]interface{}, len(vars))
	for k, v := range vars {
		if d, ok := v.(decimal.Decimal); ok {
			f, _ := d.Round(2).Float64()
			v = f
		}
		env[textfold.Key(k)] = v
	}
	return env
}

// Variables lists the distinct placeholder names of body in order of appearance.
func Variables(body string) []string {
	seen := make(map[string]bool)
	out := []string{}
	for _, m := range placeholderRe.FindAllStringSubmatch(body, -1) {
		name := strings.TrimSpace(m[1])
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}

// Format renders a value the way Spanish documents expect: amounts with two
// decimals and dates as dd/mm/yyyy.
func Format(v interface{}) string {
	switch x := v.(type) {
	case string:
		return x
	case decimal.Decimal:
		return x.StringFixed(2)
	case float64:
		if x == float64(int64(x)) {
			return strconv.FormatInt(int64(x), 10)
		}
		return strconv.FormatFloat(x, 'f', 2, 64)
	case float32:
		return Format(float64(x))
	case time.Time:
		return x.Format("02/01/2006")
	case *time.Time:
		if x == nil {
			return ""
		}
		return x.Format("02/01/2006")
	case bool:
		if x {
			return "Sí"
		}
		return "No"
	default:
		return fmt.Sprint(x)
	}
}

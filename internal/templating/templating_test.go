package templating

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestRenderMatchesCaseAndAccentInsensitively(t *testing.T) {
	e := NewEngine()
	vars := map[string]interface{}{
		"razon_social": "Innoquest SL",
		"NIF":          "B12345678",
	}

	out := e.Render("<p>{{ Razón Social }} / {{nif}} / {{  RAZON_SOCIAL }}</p>", vars)

	assert.Equal(t, "<p>Innoquest SL / B12345678 / Innoquest SL</p>", out)
}

func TestRenderUnresolvedPlaceholder(t *testing.T) {
	out := NewEngine().Render("Hola {{ nombre }}", map[string]interface{}{})
	assert.Equal(t, "Hola "+Unavailable("nombre"), out)
	assert.Contains(t, out, `<span style="color: red; font-style: italic;">[nombre no disponible]</span>`)
}

func TestRenderEvaluatesExpressions(t *testing.T) {
	e := NewEngine()
	vars := map[string]interface{}{
		"subtotal": decimal.RequireFromString("100.00"),
		"facturas": 30,
		"empresa":  "La Llave",
		"mensual":  true,
	}

	assert.Equal(t, "200", e.Render("{{ subtotal * 2 }}", vars))
	assert.Equal(t, "mucho", e.Render(`{{ facturas > 25 ? "mucho" : "poco" }}`, vars))
	assert.Equal(t, "LA LLAVE", e.Render("{{ upper(empresa) }}", vars))
	assert.Equal(t, "Sí", e.Render("{{ mensual }}", vars))
	// broken expressions degrade to the marker
	assert.Equal(t, Unavailable("subtotal +"), e.Render("{{ subtotal + }}", vars))
}

func TestRenderReusesCompiledPrograms(t *testing.T) {
	e := NewEngine()
	e.Render("{{ a + b }}", map[string]interface{}{"a": 1, "b": 2})
	_, ok := e.programs.Get("a + b")
	assert.True(t, ok)
	assert.Equal(t, "5", e.Render("{{ a + b }}", map[string]interface{}{"a": 2, "b": 3}))
}

func TestVariables(t *testing.T) {
	body := "{{ nombre }} {{fecha}} {{ nombre }} {{ total * 2 }}"
	assert.Equal(t, []string{"nombre", "fecha", "total * 2"}, Variables(body))
	assert.Empty(t, Variables("sin variables"))
}

func TestFormat(t *testing.T) {
	d := time.Date(2025, 7, 15, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "15/07/2025", Format(d))
	assert.Equal(t, "12.50", Format(decimal.RequireFromString("12.5")))
	assert.Equal(t, "12.50", Format(12.5))
	assert.Equal(t, "7", Format(7))
	assert.Equal(t, "No", Format(false))
}

// Package tax holds the pure tax rules: which models a client type may file,
// how period labels are classified and how filing windows change status.
package tax

import (
	"errors"
	"fmt"
	"sort"

	"gestoria/internal/model"
)

// Rule restricts a tax model to client types and periodicities.
type Rule struct {
	AllowedTypes   []string
	AllowedPeriods []string
	Labels         []string // fixed instalment labels, only for ESPECIAL_FRACCIONADO
}

var (
	autonomoEmpresa = []string{model.ClientTypeAutonomo, model.ClientTypeEmpresa}
	monthlyOrQtr    = []string{model.PeriodicityMensual, model.PeriodicityTrimestral}
	annual          = []string{model.PeriodicityAnual}
)

// Rules is keyed by tax model code.
var Rules = map[string]Rule{
	"100": {AllowedTypes: []string{model.ClientTypeAutonomo, model.ClientTypeParticular}, AllowedPeriods: annual},
	"200": {AllowedTypes: []string{model.ClientTypeEmpresa}, AllowedPeriods: annual},
	"202": {
		AllowedTypes:   []string{model.ClientTypeEmpresa},
		AllowedPeriods: []string{model.PeriodicityFraccionado},
		Labels:         []string{"Abril", "Octubre", "Diciembre"},
	},
	"130": {AllowedTypes: []string{model.ClientTypeAutonomo}, AllowedPeriods: []string{model.PeriodicityTrimestral}},
	"131": {AllowedTypes: []string{model.ClientTypeAutonomo}, AllowedPeriods: []string{model.PeriodicityTrimestral}},
	"303": {AllowedTypes: autonomoEmpresa, AllowedPeriods: monthlyOrQtr},
	"390": {AllowedTypes: autonomoEmpresa, AllowedPeriods: annual},
	"347": {AllowedTypes: autonomoEmpresa, AllowedPeriods: annual},
	"349": {AllowedTypes: autonomoEmpresa, AllowedPeriods: monthlyOrQtr},
	"720": {AllowedTypes: autonomoEmpresa, AllowedPeriods: annual},
	"190": {AllowedTypes: autonomoEmpresa, AllowedPeriods: annual},
	"180": {AllowedTypes: autonomoEmpresa, AllowedPeriods: annual},
	"111": {AllowedTypes: autonomoEmpresa, AllowedPeriods: monthlyOrQtr},
}

// ModelNames are the display names of the known models.
var ModelNames = map[string]string{
	"100": "IRPF - Declaración de la Renta",
	"111": "Retenciones - Modelo 111",
	"130": "IRPF - Pago fraccionado (actividades económicas)",
	"131": "IRPF - Pago fraccionado (estimación directa)",
	"180": "Retenciones - Alquileres",
	"190": "Retenciones - Resumen anual",
	"200": "Impuesto sobre Sociedades",
	"202": "Pagos fraccionados IS",
	"303": "IVA - Autoliquidación",
	"347": "Operaciones con terceras personas",
	"349": "Operaciones intracomunitarias",
	"390": "IVA - Resumen anual",
	"720": "Bienes en el extranjero",
}

var (
	ErrUnknownModel          = errors.New("unknown tax model")
	ErrClientTypeNotAllowed  = errors.New("tax model not allowed for client type")
	ErrPeriodicityNotAllowed = errors.New("periodicity not allowed for tax model")
)

// ModelCodes returns the known model codes sorted.
func ModelCodes() []string {
	codes := make([]string, 0, len(Rules))
	for code := range Rules {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// IsAllowedForClientType reports whether clientType may be assigned the model.
func IsAllowedForClientType(modelCode, clientType string) bool {
	rule, ok := Rules[modelCode]
	return ok && contains(rule.AllowedTypes, clientType)
}

// AllowedPeriods returns the periodicities a model can be filed with.
func AllowedPeriods(modelCode string) []string {
	return Rules[modelCode].AllowedPeriods
}

// DefaultPeriodicity is the first allowed periodicity, used when converting a budget.
func DefaultPeriodicity(modelCode string) (string, bool) {
	periods := AllowedPeriods(modelCode)
	if len(periods) == 0 {
		return "", false
	}
	return periods[0], true
}

// ValidateAssignment checks a client-type/model/periodicity triple against Rules.
func ValidateAssignment(clientType, modelCode, periodicity string) error {
	rule, ok := Rules[modelCode]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownModel, modelCode)
	}
	if !contains(rule.AllowedTypes, clientType) {
		return fmt.Errorf("%w: model %s is not compatible with %s clients", ErrClientTypeNotAllowed, modelCode, clientType)
	}
	if !contains(rule.AllowedPeriods, periodicity) {
		return fmt.Errorf("%w: %s is not allowed for model %s", ErrPeriodicityNotAllowed, periodicity, modelCode)
	}
	return nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

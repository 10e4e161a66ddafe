package service

import (
	"context"
	"testing"

	"gestoria/internal/model"
	"gestoria/internal/templating"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTemplateService(t *testing.T) (TemplateService, repos) {
	t.Helper()
	r := newRepos(t)
	svc := NewTemplateService(r.templates, r.clients, r.budgets, templating.NewEngine())
	svc.(*templateService).now = fixedClock(day(2025, 10, 15))
	return svc, r
}

func TestRenderTemplateWithClient(t *testing.T) {
	svc, r := newTemplateService(t)
	ctx := context.Background()
	client := r.client(t, "Innoquest SL", "B12345678", model.ClientTypeEmpresa)

	b := model.Budget{
		Number: "PRE-2025-001", Year: 2025, Type: model.BudgetTypeEmpresa, ProspectName: "Innoquest SL",
		Periodicity: "TRIMESTRAL", TaxRegime: "NORMAL", Status: model.BudgetStatusDraft,
		Subtotal: decimal.NewFromInt(100), VATTotal: decimal.NewFromInt(21), Total: decimal.NewFromInt(121),
	}
	require.NoError(t, r.budgets.Create(ctx, &b))

	tpl, err := svc.CreateTemplate(ctx, DocumentTemplateRequest{
		Name: "Bienvenida",
		Type: model.TemplateTypeLetter,
		Body: "Hola {{ Razón Social }} ({{ NIF }}), total {{ total * 2 }} {{ desconocido }} {{ fecha }}",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Razón Social", "NIF", "total * 2", "desconocido", "fecha"}, tpl.Variables)

	out, err := svc.RenderTemplate(ctx, tpl.ID, RenderRequest{ClientID: client.ID.String(), BudgetID: b.ID.String()})
	require.NoError(t, err)
	assert.Equal(t, "Hola Innoquest SL (B12345678), total 242 "+templating.Unavailable("desconocido")+" 15/10/2025", out.Content)

	out, err = svc.RenderTemplate(ctx, tpl.ID, RenderRequest{
		ClientID:  client.ID.String(),
		Variables: map[string]interface{}{"razon_social": "Otro Nombre", "desconocido": "ya no"},
	})
	require.NoError(t, err)
	assert.Contains(t, out.Content, "Hola Otro Nombre")
	assert.Contains(t, out.Content, "ya no")

	_, err = svc.RenderTemplate(ctx, tpl.ID, RenderRequest{ClientID: uuid.NewString()})
	assert.ErrorIs(t, err, ErrNotFound)

	vars, err := svc.TemplateVariables(ctx, tpl.ID)
	require.NoError(t, err)
	assert.Len(t, vars, 5)
}

func TestTemplateCRUD(t *testing.T) {
	svc, _ := newTemplateService(t)
	ctx := context.Background()

	inactive := false
	tpl, err := svc.CreateTemplate(ctx, DocumentTemplateRequest{
		Name: "Contrato", Type: model.TemplateTypeContract, Body: "{{ cliente }}", IsActive: &inactive,
	})
	require.NoError(t, err)
	assert.False(t, tpl.IsActive)

	updated, err := svc.UpdateTemplate(ctx, tpl.ID, DocumentTemplateRequest{
		Name: "Contrato anual", Type: model.TemplateTypeContract, Body: "{{ cliente }} {{ año }}",
	})
	require.NoError(t, err)
	assert.Equal(t, "Contrato anual", updated.Name)
	assert.Equal(t, []string{"cliente", "año"}, updated.Variables)

	list, err := svc.ListTemplates(ctx, model.TemplateTypeContract)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, svc.DeleteTemplate(ctx, tpl.ID))
	_, err = svc.GetTemplate(ctx, tpl.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNotificationTemplates(t *testing.T) {
	svc, r := newTemplateService(t)
	ctx := context.Background()
	client := r.client(t, "Innoquest SL", "B12345678", model.ClientTypeEmpresa)

	req := NotificationTemplateRequest{
		Name:    "recordatorio-303",
		Type:    "tax",
		Subject: "Modelo 303 de {{ cliente }}",
		Body:    "Recuerde presentar el modelo 303 antes del {{ vencimiento }}.",
	}
	tpl, err := svc.CreateNotificationTemplate(ctx, req)
	require.NoError(t, err)

	_, err = svc.CreateNotificationTemplate(ctx, req)
	assert.ErrorIs(t, err, ErrConflict)

	out, err := svc.RenderNotificationTemplate(ctx, tpl.ID, RenderRequest{
		ClientID:  client.ID.String(),
		Variables: map[string]interface{}{"vencimiento": "20/10/2025"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Modelo 303 de Innoquest SL", out.Subject)
	assert.Equal(t, "Recuerde presentar el modelo 303 antes del 20/10/2025.", out.Content)

	require.NoError(t, svc.DeleteNotificationTemplate(ctx, tpl.ID))
	_, err = svc.GetNotificationTemplate(ctx, tpl.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

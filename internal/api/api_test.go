package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"mass-messaging/internal/config"
	"mass-messaging/internal/contacts"
	"mass-messaging/internal/database"
	"mass-messaging/internal/directory"
	"mass-messaging/internal/dispatch"
	"mass-messaging/internal/logger"
	"mass-messaging/internal/models"
	"mass-messaging/internal/sms"
	"mass-messaging/internal/store"
	"mass-messaging/internal/templating"
	domain "mass-messaging/pkg/models"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- fakes ---

type fakeDirectory struct {
	page directory.Page
	err  error
}

func (f *fakeDirectory) FetchContacts(ctx context.Context, q directory.Query) (directory.Page, error) {
	return f.page, f.err
}

type fakeCatalogue struct {
	list []domain.ChatTemplate
	err  error
}

func (f *fakeCatalogue) GetTemplates(ctx context.Context, status string, limit int) ([]domain.ChatTemplate, error) {
	return f.list, f.err
}

func (f *fakeCatalogue) GetTemplate(ctx context.Context, name string) (domain.ChatTemplate, bool, error) {
	for _, t := range f.list {
		if t.Name == name {
			return t, true, nil
		}
	}
	return domain.ChatTemplate{}, false, f.err
}

type fakeChat struct {
	last domain.ChatTemplateRequest
	err  error
}

func (f *fakeChat) SendBulkTemplate(ctx context.Context, req domain.ChatTemplateRequest) (domain.ChatTemplateSendResponse, error) {
	f.last = req
	if f.err != nil {
		return domain.ChatTemplateSendResponse{}, f.err
	}
	resp := domain.ChatTemplateSendResponse{Total: len(req.Recipients)}
	for i, r := range req.Recipients {
		resp.Sent++
		resp.Messages = append(resp.Messages, domain.RecipientResult{
			Recipient: r.Name,
			Phone:     r.Phone,
			Success:   true,
			MessageID: "wamid." + strconv.Itoa(i),
		})
	}
	return resp, nil
}

type fakeBulk struct {
	resp domain.BulkSendResponse
	err  error
}

func (f *fakeBulk) SendBulk(ctx context.Context, req domain.BulkSendRequest) (domain.BulkSendResponse, error) {
	return f.resp, f.err
}

type fakeQueue struct {
	jobs []domain.BulkJob
}

func (f *fakeQueue) Enqueue(ctx context.Context, job domain.BulkJob) error {
	f.jobs = append(f.jobs, job)
	return nil
}

type fakeSMS struct {
	last domain.SMSSendRequest
}

func (f *fakeSMS) SendSMS(ctx context.Context, req domain.SMSSendRequest) (domain.SMSSendResponse, error) {
	f.last = req
	return domain.SMSSendResponse{Success: true}, nil
}

type fakeCredits struct {
	credits float64
	err     error
}

func (f *fakeCredits) Credits(ctx context.Context) (float64, error) {
	return f.credits, f.err
}

// --- harness ---

type testEnv struct {
	router    *gin.Engine
	groups    *store.GroupStore
	templates *store.TemplateStore
	history   *store.HistoryStore
	directory *fakeDirectory
	catalogue *fakeCatalogue
	chat      *fakeChat
	bulk      *fakeBulk
	sms       *fakeSMS
	credits   *fakeCredits
	queue     *fakeQueue
}

func newTestEnv(t *testing.T, queued bool) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.OpenMemory()
	require.NoError(t, err)

	cfg := &config.Config{WhatsAppBusinessAccountID: "waba-1"}
	renderer := templating.NewRenderer(templating.DefaultBrand)
	env := &testEnv{
		groups:    store.NewGroupStore(db),
		templates: store.NewTemplateStore(db),
		history:   store.NewHistoryStore(db),
		directory: &fakeDirectory{},
		catalogue: &fakeCatalogue{},
		chat:      &fakeChat{},
		bulk:      &fakeBulk{},
		sms:       &fakeSMS{},
		credits:   &fakeCredits{},
	}
	opts := dispatch.Options{
		Chat:     env.chat,
		Bulk:     env.bulk,
		SMS:      env.sms,
		Recorder: env.history,
		Renderer: renderer,
		Logger:   logger.Nop(),
	}
	if queued {
		env.queue = &fakeQueue{}
		opts.Queue = env.queue
	}
	svc := dispatch.NewService(opts)

	env.router = gin.New()
	Handlers{
		Contacts:  NewContactHandler(env.directory),
		Groups:    NewGroupHandler(env.groups),
		Templates: NewTemplateHandler(env.templates, renderer),
		Broadcast: NewBroadcastHandler(env.catalogue, env.templates, env.groups, svc, cfg, logger.Nop()),
		Messages:  NewMessageHandler(svc, env.groups, env.credits),
		Dashboard: NewDashboardHandler(env.history),
	}.Register(env.router.Group("/api"))
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, into interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), into), w.Body.String())
}

func ana() domain.ContactRecord {
	return domain.ContactRecord{Key: "k-ana", Name: "Ana Pérez", Phone: "+573001234567", Provenance: domain.Provenance{Kind: domain.ProvenanceManual}}
}

func eva() domain.ContactRecord {
	return domain.ContactRecord{Key: "k-eva", Name: "Eva", Email: "eva@mail.com", Provenance: domain.Provenance{Kind: domain.ProvenanceManual}}
}

// --- validation ---

func TestErrorResponse_ValidationFields(t *testing.T) {
	e := newTestEnv(t, false)

	w := e.do(t, http.MethodPost, "/api/groups", map[string]string{})
	require.Equal(t, http.StatusBadRequest, w.Code)
	var body ErrorBody
	decode(t, w, &body)
	assert.Equal(t, "validation_failed", body.Error)
	assert.Equal(t, []string{"required"}, body.Fields["name"])

	w = e.do(t, http.MethodPost, "/api/messages/bulk", map[string]interface{}{
		"channel":    "email",
		"content":    "<p>Hola</p>",
		"recipients": []domain.ContactRecord{eva()},
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
	decode(t, w, &body)
	assert.Equal(t, []string{"required_if"}, body.Fields["subject"])

	w = e.do(t, http.MethodPost, "/api/messages/bulk", map[string]interface{}{
		"channel":    "sms",
		"content":    "Hola",
		"recipients": []domain.ContactRecord{ana()},
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
	decode(t, w, &body)
	assert.Equal(t, []string{"oneof"}, body.Fields["channel"])
}

func TestErrorResponse_MalformedJSON(t *testing.T) {
	body := ErrorResponse(errors.New("unexpected EOF"))
	assert.Equal(t, "unexpected EOF", body.Error)
	assert.Empty(t, body.Fields)
}

// --- contacts ---

func TestContactHandler_ManualAndBulk(t *testing.T) {
	e := newTestEnv(t, false)

	w := e.do(t, http.MethodPost, "/api/contacts/manual", map[string]string{"value": "ana@mail.com"})
	require.Equal(t, http.StatusOK, w.Code)
	var rec domain.ContactRecord
	decode(t, w, &rec)
	assert.Equal(t, "ana", rec.Name)
	assert.Equal(t, domain.ProvenanceManual, rec.Provenance.Kind)
	assert.NotEmpty(t, rec.Key)

	w = e.do(t, http.MethodPost, "/api/contacts/manual", map[string]string{"value": "12ab"})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "invalid_format")

	w = e.do(t, http.MethodPost, "/api/contacts/bulk/preview", map[string]string{"text": "3001234567; luis@mail.com\nnope@"})
	require.Equal(t, http.StatusOK, w.Code)
	var preview struct {
		Valid   []domain.ContactRecord `json:"valid"`
		Invalid []struct {
			Token string `json:"token"`
		} `json:"invalid"`
	}
	decode(t, w, &preview)
	require.Len(t, preview.Valid, 2)
	assert.Equal(t, "+573001234567", preview.Valid[0].Phone)
	require.Len(t, preview.Invalid, 1)
	assert.Equal(t, "nope@", preview.Invalid[0].Token)
}

func TestContactHandler_Merge(t *testing.T) {
	e := newTestEnv(t, false)

	dup := ana()
	dup.Key = "k-dup"
	dup.Phone = "+57 300 123 4567"
	w := e.do(t, http.MethodPost, "/api/contacts/merge", map[string]interface{}{
		"existing": []domain.ContactRecord{ana()},
		"incoming": []domain.ContactRecord{dup, eva()},
	})
	require.Equal(t, http.StatusOK, w.Code)
	var res struct {
		Added    []domain.ContactRecord `json:"added"`
		Rejected []struct {
			Reason string `json:"reason"`
		} `json:"rejected"`
	}
	decode(t, w, &res)
	require.Len(t, res.Added, 1)
	assert.Equal(t, "k-eva", res.Added[0].Key)
	require.Len(t, res.Rejected, 1)
	assert.Equal(t, "duplicate", res.Rejected[0].Reason)
}

func TestContactHandler_Directory(t *testing.T) {
	e := newTestEnv(t, false)
	e.directory.page = directory.Page{Total: 1, Contacts: []domain.DirectoryContact{
		{ID: "7", Name: " Ana ", Email: "ana@mail.com", Department: "Ventas"},
	}}

	w := e.do(t, http.MethodGet, "/api/contacts/directory?search=ana", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var page struct {
		Total    int                    `json:"total"`
		Contacts []domain.ContactRecord `json:"contacts"`
	}
	decode(t, w, &page)
	assert.Equal(t, 1, page.Total)
	require.Len(t, page.Contacts, 1)
	assert.Equal(t, "Ana", page.Contacts[0].Name)
	assert.Equal(t, "directory:7", page.Contacts[0].Provenance.String())

	e.directory.err = directory.ErrNotConfigured
	w = e.do(t, http.MethodGet, "/api/contacts/directory", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	e.directory.err = errors.New("connection refused")
	w = e.do(t, http.MethodGet, "/api/contacts/directory", nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

// --- groups ---

func TestGroupHandler_Lifecycle(t *testing.T) {
	e := newTestEnv(t, false)

	w := e.do(t, http.MethodPost, "/api/groups", GroupRequest{Name: "Ventas"})
	require.Equal(t, http.StatusCreated, w.Code)
	var g models.Group
	decode(t, w, &g)
	path := "/api/groups/" + strconv.Itoa(int(g.ID))

	w = e.do(t, http.MethodPost, "/api/groups", GroupRequest{Name: "Ventas"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = e.do(t, http.MethodGet, "/api/groups/abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = e.do(t, http.MethodGet, "/api/groups/999", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = e.do(t, http.MethodPost, path+"/contacts", AddGroupContactsRequest{Contacts: []store.NewContact{
		{Name: "Ana", Phone: "3001234567"},
		{Name: "Luis", Email: "luis@mail.com"},
		{Name: "Ana bis", Phone: "+573001234567"},
	}})
	require.Equal(t, http.StatusCreated, w.Code)
	var added struct {
		Added    []models.GroupContact `json:"added"`
		Rejected []json.RawMessage     `json:"rejected"`
	}
	decode(t, w, &added)
	require.Len(t, added.Added, 2)
	assert.Len(t, added.Rejected, 1)

	contactPath := path + "/contacts/" + strconv.Itoa(int(added.Added[0].ID))
	w = e.do(t, http.MethodPut, contactPath, store.NewContact{Name: "Ana", Phone: "12"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	w = e.do(t, http.MethodPut, contactPath, store.NewContact{Name: "Ana María", Phone: "3001234567"})
	require.Equal(t, http.StatusOK, w.Code)

	w = e.do(t, http.MethodGet, "/api/groups", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list []store.GroupSummary
	decode(t, w, &list)
	require.Len(t, list, 1)
	assert.EqualValues(t, 2, list[0].ContactCount)

	w = e.do(t, http.MethodDelete, path, nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = e.do(t, http.MethodGet, path, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGroupHandler_Resolve(t *testing.T) {
	e := newTestEnv(t, false)
	ctx := context.Background()

	a, err := e.groups.Create(ctx, "A", "")
	require.NoError(t, err)
	b, err := e.groups.Create(ctx, "B", "")
	require.NoError(t, err)
	_, _, err = e.groups.AddContacts(ctx, a.ID, []store.NewContact{{Name: "Ana", Phone: "3001234567"}, {Name: "Luis", Email: "luis@mail.com"}})
	require.NoError(t, err)
	_, _, err = e.groups.AddContacts(ctx, b.ID, []store.NewContact{{Name: "Ana", Phone: "3001234567"}})
	require.NoError(t, err)

	w := e.do(t, http.MethodPost, "/api/groups/resolve", ResolveGroupsRequest{GroupIDs: []uint{a.ID, b.ID}})
	require.Equal(t, http.StatusOK, w.Code)
	var res struct {
		Contacts []domain.ContactRecord `json:"contacts"`
		Rejected []json.RawMessage      `json:"rejected"`
	}
	decode(t, w, &res)
	assert.Len(t, res.Contacts, 2)
	assert.Len(t, res.Rejected, 1)

	w = e.do(t, http.MethodPost, "/api/groups/resolve", ResolveGroupsRequest{GroupIDs: []uint{a.ID, 404}})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

// --- templates ---

func TestTemplateHandler_CRUD(t *testing.T) {
	e := newTestEnv(t, false)

	w := e.do(t, http.MethodPost, "/api/templates", TemplateRequest{
		Name:    "Bienvenida",
		Subject: "Hola {{nombre}}",
		Content: "<p>Bienvenida {{nombre}}</p>",
		Channel: "email",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	var created models.Template
	decode(t, w, &created)
	require.NotNil(t, created.Envelope)
	assert.False(t, *created.Envelope)
	assert.Equal(t, "double", created.Grammar)

	w = e.do(t, http.MethodPost, "/api/templates", TemplateRequest{Name: "Bienvenida", Content: "x", Channel: "sms"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = e.do(t, http.MethodPost, "/api/templates", TemplateRequest{
		Name:    "Documento",
		Content: "<!DOCTYPE html><html><body><p>Hola</p></body></html>",
		Channel: "email",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	var doc models.Template
	decode(t, w, &doc)
	require.NotNil(t, doc.Envelope)
	assert.True(t, *doc.Envelope)

	w = e.do(t, http.MethodGet, "/api/templates?channel=email", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list []models.Template
	decode(t, w, &list)
	assert.Len(t, list, 2)

	path := "/api/templates/" + strconv.Itoa(int(created.ID))
	w = e.do(t, http.MethodPut, path, TemplateRequest{Name: "Bienvenida", Content: "Hola [nombre]", Channel: "sms", Grammar: "single"})
	require.Equal(t, http.StatusOK, w.Code)
	var updated models.Template
	decode(t, w, &updated)
	assert.Equal(t, "single", updated.Grammar)
	assert.Equal(t, "sms", updated.Channel)

	w = e.do(t, http.MethodDelete, path, nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = e.do(t, http.MethodGet, path, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestTemplateHandler_EditableContent(t *testing.T) {
	e := newTestEnv(t, false)
	wrapped := templating.NewRenderer(templating.DefaultBrand).Wrap("<p>Hola {{nombre}}</p>", "Aviso")

	envelope := true
	w := e.do(t, http.MethodPost, "/api/templates", TemplateRequest{Name: "Aviso", Content: wrapped, Channel: "email", Envelope: &envelope})
	require.Equal(t, http.StatusCreated, w.Code)
	var created models.Template
	decode(t, w, &created)

	w = e.do(t, http.MethodGet, "/api/templates/"+strconv.Itoa(int(created.ID)), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var view TemplateView
	decode(t, w, &view)
	assert.Contains(t, view.EditableContent, "Hola {{nombre}}")
	assert.NotContains(t, view.EditableContent, "<html")
	assert.Equal(t, wrapped, view.Content)
}

func TestTemplateHandler_VariablesAndPreview(t *testing.T) {
	e := newTestEnv(t, false)
	tpl := models.Template{Name: "Codigo", Content: "Hola {{nombre}}, tu código es {{codigo}}", Channel: "sms", Grammar: "double"}
	require.NoError(t, e.templates.Create(context.Background(), &tpl))
	path := "/api/templates/" + strconv.Itoa(int(tpl.ID))

	w := e.do(t, http.MethodPost, path+"/variables", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var vars struct {
		Grammar    string                `json:"grammar"`
		Resolution templating.Resolution `json:"resolution"`
	}
	decode(t, w, &vars)
	assert.Equal(t, "double", vars.Grammar)
	assert.Equal(t, []string{"nombre", "codigo"}, vars.Resolution.Order)
	assert.Equal(t, []string{"codigo"}, vars.Resolution.Custom)

	rec := ana()
	rec.Key = ""
	w = e.do(t, http.MethodPost, path+"/preview", PreviewRequest{
		Recipients: []domain.ContactRecord{rec},
		Custom:     map[string]string{"codigo": "A1", "otro": "x"},
	})
	require.Equal(t, http.StatusOK, w.Code)
	var preview struct {
		Ignored  []string      `json:"ignored"`
		Previews []PreviewItem `json:"previews"`
	}
	decode(t, w, &preview)
	assert.Equal(t, []string{"otro"}, preview.Ignored)
	require.Len(t, preview.Previews, 1)
	assert.NotEmpty(t, preview.Previews[0].Key)
	assert.Equal(t, "Hola Ana Pérez, tu código es A1", preview.Previews[0].Body)

	w = e.do(t, http.MethodPost, path+"/preview", PreviewRequest{})
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &preview)
	require.Len(t, preview.Previews, 1)
	assert.Empty(t, preview.Previews[0].Key)
}

// --- chat templates ---

func promo(name, status string, header *domain.ChatTemplateHeader) domain.ChatTemplate {
	return domain.ChatTemplate{
		ID:        "id-" + name,
		Name:      name,
		Language:  "es_CO",
		Status:    status,
		Header:    header,
		Body:      "Hola {{nombre}}, usa {{codigo}}",
		Variables: []string{"nombre", "codigo"},
	}
}

func TestBroadcastHandler_SyncAndList(t *testing.T) {
	e := newTestEnv(t, false)
	e.catalogue.list = []domain.ChatTemplate{promo("promo", "APPROVED", nil), promo("borrador", "PENDING", nil)}

	w := e.do(t, http.MethodPost, "/api/templates/sync", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"count":2`)

	w = e.do(t, http.MethodGet, "/api/templates/whatsapp?source=local", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var local []domain.ChatTemplate
	decode(t, w, &local)
	require.Len(t, local, 1)
	assert.Equal(t, "promo", local[0].Name)
	assert.Equal(t, []string{"nombre", "codigo"}, local[0].Variables)

	e.catalogue.err = errors.New("meta down")
	w = e.do(t, http.MethodGet, "/api/templates/whatsapp", nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestBroadcastHandler_SendBroadcast(t *testing.T) {
	e := newTestEnv(t, false)
	ctx := context.Background()
	_, err := e.templates.SaveChatTemplates(ctx, []domain.ChatTemplate{promo("promo", "APPROVED", nil)})
	require.NoError(t, err)

	g, err := e.groups.Create(ctx, "Clientes", "")
	require.NoError(t, err)
	_, _, err = e.groups.AddContacts(ctx, g.ID, []store.NewContact{
		{Name: "Ana", Phone: "3001234567"},
		{Name: "Luis", Phone: "3109876543"},
	})
	require.NoError(t, err)

	w := e.do(t, http.MethodPost, "/api/messages/whatsapp-template", ChatTemplateSendRequest{
		TemplateName: "promo",
		Recipients:   []domain.ContactRecord{ana(), eva()},
		GroupIDs:     []uint{g.ID},
		Custom:       map[string]string{"codigo": "X1"},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var outcome domain.SendOutcome
	decode(t, w, &outcome)
	assert.Equal(t, 2, outcome.Total)
	assert.Equal(t, 2, outcome.Sent)
	assert.Equal(t, 1, outcome.Excluded)
	assert.Equal(t, domain.OutcomeSuccess, outcome.Status)

	require.Len(t, e.chat.last.Recipients, 2)
	assert.Equal(t, "Ana Pérez", e.chat.last.Recipients[0].Name)
	assert.Equal(t, "+573109876543", e.chat.last.Recipients[1].Phone)
	assert.Equal(t, "X1", e.chat.last.Recipients[0].Custom["codigo"])
	assert.Equal(t, "es_CO", e.chat.last.LanguageCode)

	w = e.do(t, http.MethodGet, "/api/history?channel=chat", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var page store.Page
	decode(t, w, &page)
	assert.EqualValues(t, 2, page.Total)
}

func TestBroadcastHandler_SendBroadcastRejections(t *testing.T) {
	e := newTestEnv(t, false)
	ctx := context.Background()
	_, err := e.templates.SaveChatTemplates(ctx, []domain.ChatTemplate{
		promo("promo", "APPROVED", nil),
		promo("promo_img", "APPROVED", &domain.ChatTemplateHeader{Format: "IMAGE"}),
		promo("borrador", "PENDING", nil),
	})
	require.NoError(t, err)

	send := func(req ChatTemplateSendRequest) *httptest.ResponseRecorder {
		return e.do(t, http.MethodPost, "/api/messages/whatsapp-template", req)
	}

	w := send(ChatTemplateSendRequest{TemplateName: "missing", Recipients: []domain.ContactRecord{ana()}})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = send(ChatTemplateSendRequest{TemplateName: "borrador", Recipients: []domain.ContactRecord{ana()}})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = send(ChatTemplateSendRequest{TemplateName: "promo", Recipients: []domain.ContactRecord{eva()}})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "no_eligible_recipients")

	w = send(ChatTemplateSendRequest{TemplateName: "promo_img", Recipients: []domain.ContactRecord{ana()}})
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "missing_required_media")
	assert.Empty(t, e.chat.last.Recipients)

	w = send(ChatTemplateSendRequest{TemplateName: "promo_img", Recipients: []domain.ContactRecord{ana()}, Confirm: true})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "IMAGE", e.chat.last.HeaderFormat)

	e.chat.err = errors.New("HTTP error: 500")
	w = send(ChatTemplateSendRequest{TemplateName: "promo", Recipients: []domain.ContactRecord{ana()}})
	require.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, w.Body.String(), "collaborator_failure")
}

func TestBroadcastHandler_FallsBackToCatalogue(t *testing.T) {
	e := newTestEnv(t, false)
	e.catalogue.list = []domain.ChatTemplate{promo("remoto", "APPROVED", nil)}

	w := e.do(t, http.MethodPost, "/api/messages/whatsapp-template", ChatTemplateSendRequest{
		TemplateName: "remoto",
		Recipients:   []domain.ContactRecord{ana()},
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "remoto", e.chat.last.TemplateName)
}

// --- bulk and sms ---

func TestMessageHandler_SendBulkSync(t *testing.T) {
	e := newTestEnv(t, false)
	e.bulk.resp = domain.BulkSendResponse{Total: 2, Sent: 2}

	luis := domain.ContactRecord{Key: "k-luis", Name: "Luis", Email: "luis@mail.com"}
	w := e.do(t, http.MethodPost, "/api/messages/bulk", BulkMessageRequest{
		Channel:    domain.ChannelEmail,
		Subject:    "Aviso",
		Content:    "<p>Hola {{nombre}}</p>",
		Recipients: []domain.ContactRecord{eva(), luis, ana()},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var outcome domain.SendOutcome
	decode(t, w, &outcome)
	assert.Equal(t, 3, outcome.Total)
	assert.Equal(t, 2, outcome.Sent)
	assert.Equal(t, 1, outcome.Failed)
	assert.Equal(t, domain.OutcomePartial, outcome.Status)
	assert.False(t, outcome.Async)

	e.bulk.err = errors.New("HTTP error: 502")
	w = e.do(t, http.MethodPost, "/api/messages/bulk", BulkMessageRequest{
		Channel:    domain.ChannelEmail,
		Subject:    "Aviso",
		Content:    "Hola",
		Recipients: []domain.ContactRecord{eva()},
	})
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestMessageHandler_SendBulkQueued(t *testing.T) {
	e := newTestEnv(t, true)

	luis := domain.ContactRecord{Key: "k-luis", Name: "Luis", Email: "luis@mail.com"}
	w := e.do(t, http.MethodPost, "/api/messages/bulk", BulkMessageRequest{
		Channel:    domain.ChannelEmail,
		Subject:    "Aviso",
		Content:    "Hola",
		Recipients: []domain.ContactRecord{eva(), luis},
	})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	var outcome domain.SendOutcome
	decode(t, w, &outcome)
	assert.True(t, outcome.Async)
	assert.Equal(t, domain.OutcomeAccepted, outcome.Status)
	require.NotEmpty(t, outcome.BatchID)
	require.Len(t, e.queue.jobs, 1)
	assert.Equal(t, outcome.BatchID, e.queue.jobs[0].BatchID)

	w = e.do(t, http.MethodGet, "/api/history?status=queued&batch_id="+outcome.BatchID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var page store.Page
	decode(t, w, &page)
	assert.EqualValues(t, 2, page.Total)

	w = e.do(t, http.MethodGet, "/api/history/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var stats store.Stats
	decode(t, w, &stats)
	assert.EqualValues(t, 2, stats.Total)
	assert.EqualValues(t, 2, stats.ByStatus[models.StatusQueued])
	assert.EqualValues(t, 2, stats.ByChannel["email"])
}

func TestMessageHandler_SendSMS(t *testing.T) {
	e := newTestEnv(t, false)

	luis := domain.ContactRecord{Key: "k-luis", Name: "Luis", Phone: "+573109876543"}
	w := e.do(t, http.MethodPost, "/api/sms/send-bulk", SMSMessageRequest{
		Message:    "Hola {{nombre}}, código {{codigo}}",
		Recipients: []domain.ContactRecord{ana(), luis, eva()},
		Custom:     map[string]string{"codigo": "Z9"},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var outcome domain.SendOutcome
	decode(t, w, &outcome)
	assert.Equal(t, 2, outcome.Sent)
	assert.Equal(t, 1, outcome.Excluded)

	require.Len(t, e.sms.last.Recipients, 2)
	assert.Equal(t, "Hola Ana Pérez, código Z9", e.sms.last.Recipients[0].Message)
	assert.Equal(t, "Hola Luis, código Z9", e.sms.last.Recipients[1].Message)
}

func TestMessageHandler_Credits(t *testing.T) {
	e := newTestEnv(t, false)

	e.credits.credits = 12.5
	w := e.do(t, http.MethodGet, "/api/sms/credits", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"credits":12.5}`, w.Body.String())

	e.credits.err = sms.ErrNotConfigured
	w = e.do(t, http.MethodGet, "/api/sms/credits", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestMessageHandler_SendSMSDeduplicatesRecipients(t *testing.T) {
	e := newTestEnv(t, false)

	w := e.do(t, http.MethodPost, "/api/sms/send-bulk", SMSMessageRequest{
		Message: "Hola {{nombre}}",
		Recipients: []domain.ContactRecord{
			{Key: "a", Name: "Ana", Phone: "+573001111111"},
			{Key: "b", Name: "Ana local", Phone: "3001111111"},
			{Key: "c", Name: "Corto", Phone: "12"},
		},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp SendResponse
	decode(t, w, &resp)
	assert.Equal(t, 1, resp.Total)
	require.Len(t, resp.Rejected, 2)
	assert.Equal(t, contacts.ReasonDuplicate, resp.Rejected[0].Reason)
	assert.Equal(t, contacts.ReasonInvalidFormat, resp.Rejected[1].Reason)

	require.Len(t, e.sms.last.Recipients, 1)
	assert.Equal(t, "Hola Ana", e.sms.last.Recipients[0].Message)

	w = e.do(t, http.MethodPost, "/api/sms/send-bulk", SMSMessageRequest{
		Message:    "Hola",
		Recipients: []domain.ContactRecord{{Key: "c", Phone: "12"}},
	})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "invalid_format")
}

func TestSelection_GroupIDsWithoutGroupStore(t *testing.T) {
	_, err := selection(context.Background(), nil, []domain.ContactRecord{ana()}, []uint{1})
	assert.ErrorIs(t, err, errNoGroupStore)

	merged, err := selection(context.Background(), nil, []domain.ContactRecord{ana(), ana()}, nil)
	require.NoError(t, err)
	assert.Len(t, merged.Added, 1)

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/sms", NewMessageHandler(dispatch.NewService(dispatch.Options{Logger: logger.Nop()}), nil, nil).SendSMS)
	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(SMSMessageRequest{Message: "Hola", GroupIDs: []uint{1}}))
	req := httptest.NewRequest(http.MethodPost, "/sms", &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

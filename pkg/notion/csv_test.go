package notion

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/jomei/notionapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestCSVMapper_MapRow(t *testing.T) {
	m := CSVMapper{}

	headers := []string{"Name", "URL", "Industry"}
	row := []string{"Ferretería Los Andes", "https://losandes.cl", "ferreteria"}

	result := m.MapRow(headers, row)
	assert.Equal(t, "Ferretería Los Andes", result["Name"])
	assert.Equal(t, "https://losandes.cl", result["URL"])
	assert.Equal(t, "ferreteria", result["Industry"])
}

func TestCSVMapper_MapRow_ShortRow(t *testing.T) {
	m := CSVMapper{}

	headers := []string{"Name", "URL", "Industry"}
	row := []string{"Ferretería Los Andes"}

	result := m.MapRow(headers, row)
	assert.Equal(t, "Ferretería Los Andes", result["Name"])
	assert.Equal(t, "", result["URL"])
	assert.Equal(t, "", result["Industry"])
}

func TestCSVMapper_MapRow_EmptyHeaders(t *testing.T) {
	m := CSVMapper{}

	result := m.MapRow(nil, []string{"val"})
	assert.Empty(t, result)
}

func writeTempCSV(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "leads.csv")
	err := os.WriteFile(path, []byte(content), 0644)
	if err != nil {
		t.Fatal(err)
	}
	return path
}

const leadCSV = "negocio,whatsapp,email,rubro,dominio\n" +
	"Clínica Dental Sonrisa,+56 9 8274 5193,contacto@sonrisa.cl,salud,sonrisa.cl\n" +
	"Panadería El Trigal,+56 9 7351 8264,,panaderia,\n" +
	"Sonrisa Dental (dup),56982745193,otro@sonrisa.cl,salud,\n" +
	"Sin Teléfono,,x@y.cl,otros,\n"

func TestImportLeadsCSV_DedupesByPhone(t *testing.T) {
	mc := new(MockClient)
	ctx := context.Background()
	path := writeTempCSV(t, leadCSV)

	var reqs []*notionapi.PageCreateRequest
	mc.On("CreatePage", ctx, mock.AnythingOfType("*notionapi.PageCreateRequest")).
		Run(func(args mock.Arguments) {
			reqs = append(reqs, args.Get(1).(*notionapi.PageCreateRequest))
		}).
		Return(&notionapi.Page{ID: "new"}, nil).Times(2)

	count, err := ImportLeadsCSV(ctx, mc, "db-1", path, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	mc.AssertExpectations(t)

	require.Len(t, reqs, 2)
	first := reqs[0]
	assert.Equal(t, notionapi.DatabaseID("db-1"), first.Parent.DatabaseID)

	title, ok := first.Properties[PropName].(notionapi.TitleProperty)
	require.True(t, ok)
	assert.Equal(t, "Clínica Dental Sonrisa", title.Title[0].Text.Content)

	phone, ok := first.Properties["Phone"].(notionapi.PhoneNumberProperty)
	require.True(t, ok)
	assert.Equal(t, "+56 9 8274 5193", phone.PhoneNumber)

	email, ok := first.Properties["Email"].(notionapi.EmailProperty)
	require.True(t, ok)
	assert.Equal(t, "contacto@sonrisa.cl", email.Email)

	url, ok := first.Properties["URL"].(notionapi.URLProperty)
	require.True(t, ok)
	assert.Equal(t, "https://sonrisa.cl", url.URL)

	status, ok := first.Properties[PropStatus].(notionapi.StatusProperty)
	require.True(t, ok)
	assert.Equal(t, StatusQueued, status.Status.Name)

	user, ok := first.Properties[PropUser].(notionapi.RichTextProperty)
	require.True(t, ok)
	assert.Equal(t, "u1", user.RichText[0].Text.Content)

	rubro, ok := first.Properties["rubro"].(notionapi.RichTextProperty)
	require.True(t, ok)
	assert.Equal(t, "salud", rubro.RichText[0].Text.Content)

	// Empty email and URL cells produce no property.
	_, hasEmail := reqs[1].Properties["Email"]
	assert.False(t, hasEmail)
	_, hasURL := reqs[1].Properties["URL"]
	assert.False(t, hasURL)
}

func TestImportLeadsCSV_NoUser(t *testing.T) {
	mc := new(MockClient)
	ctx := context.Background()
	path := writeTempCSV(t, "name,phone\nTaller Mecánico Ruiz,+56 9 6612 3489\n")

	mc.On("CreatePage", ctx, mock.MatchedBy(func(req *notionapi.PageCreateRequest) bool {
		_, hasUser := req.Properties[PropUser]
		return !hasUser
	})).Return(&notionapi.Page{ID: "new"}, nil).Once()

	count, err := ImportLeadsCSV(ctx, mc, "db-1", path, "")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	mc.AssertExpectations(t)
}

func TestImportLeadsCSV_NoPhoneColumn(t *testing.T) {
	mc := new(MockClient)
	path := writeTempCSV(t, "name,email\nAcme,a@acme.cl\n")

	_, err := ImportLeadsCSV(context.Background(), mc, "db-1", path, "u1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no phone column")
	mc.AssertNotCalled(t, "CreatePage")
}

func TestImportLeadsCSV_HeaderOnly(t *testing.T) {
	mc := new(MockClient)
	count, err := ImportLeadsCSV(context.Background(), mc, "db-1", writeTempCSV(t, "name,phone\n"), "u1")
	assert.NoError(t, err)
	assert.Zero(t, count)
}

func TestImportLeadsCSV_FileNotFound(t *testing.T) {
	mc := new(MockClient)
	_, err := ImportLeadsCSV(context.Background(), mc, "db-1", "/nonexistent/leads.csv", "u1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "notion: open csv")
}

func TestImportLeadsCSV_CreateError(t *testing.T) {
	mc := new(MockClient)
	ctx := context.Background()
	path := writeTempCSV(t, leadCSV)

	mc.On("CreatePage", ctx, mock.AnythingOfType("*notionapi.PageCreateRequest")).
		Return(&notionapi.Page{ID: "new"}, nil).Once()
	mc.On("CreatePage", ctx, mock.AnythingOfType("*notionapi.PageCreateRequest")).
		Return(nil, assert.AnError).Once()

	count, err := ImportLeadsCSV(ctx, mc, "db-1", path, "u1")
	require.Error(t, err)
	assert.Equal(t, 1, count)
	assert.Contains(t, err.Error(), "notion: create page from csv row")
}

func TestImportLeadsCSV_ContextCancelled(t *testing.T) {
	mc := new(MockClient)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	count, err := ImportLeadsCSV(ctx, mc, "db-1", writeTempCSV(t, leadCSV), "u1")
	require.Error(t, err)
	assert.Zero(t, count)
	assert.Contains(t, err.Error(), "cancelled")
}

func TestColumnIndex(t *testing.T) {
	headers := []string{"Teléfono", " WhatsApp ", "Negocio"}
	// Alias order wins over header order.
	assert.Equal(t, 1, columnIndex(headers, phoneColumns))
	assert.Equal(t, 2, columnIndex(headers, nameColumns))
	assert.Equal(t, -1, columnIndex(headers, emailColumns))
}

func TestNormalizeURL(t *testing.T) {
	assert.Equal(t, "https://sonrisa.cl", normalizeURL("sonrisa.cl"))
	assert.Equal(t, "http://sonrisa.cl", normalizeURL("http://sonrisa.cl"))
	assert.Equal(t, "", normalizeURL("  "))
}

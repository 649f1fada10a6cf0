package compose

import (
	"sync"
	"testing"

	"mass-messaging/internal/templating"
	"mass-messaging/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func record(key string, kind models.ProvenanceKind, groupID uint, name, phone, email string) models.ContactRecord {
	return models.ContactRecord{
		Key:        key,
		Provenance: models.Provenance{Kind: kind, GroupID: groupID},
		Name:       name,
		Phone:      phone,
		Email:      email,
	}
}

func TestSession_AddContactsDeduplicates(t *testing.T) {
	s := NewSession(nil)

	res := s.AddContacts([]models.ContactRecord{
		record("a", models.ProvenanceManual, 0, "Ana", "+573001111111", ""),
		record("b", models.ProvenanceBulk, 0, "", "", "b@mail.com"),
	})
	assert.Len(t, res.Added, 2)

	res = s.AddContacts([]models.ContactRecord{
		record("c", models.ProvenanceGroup, 7, "Ana otra vez", "+573001111111", ""),
		record("d", models.ProvenanceGroup, 7, "B", "", "B@MAIL.COM"),
		record("e", models.ProvenanceGroup, 7, "Eva", "+573002222222", ""),
	})
	assert.Len(t, res.Added, 1)
	assert.Len(t, res.Rejected, 2)
	assert.Len(t, s.Selection(), 3)
}

func TestSession_ClearSourceAndRemove(t *testing.T) {
	s := NewSession(nil)
	s.AddContacts([]models.ContactRecord{
		record("a", models.ProvenanceManual, 0, "Ana", "+573001111111", ""),
		record("g1", models.ProvenanceGroup, 1, "G1", "+573002222222", ""),
		record("g2", models.ProvenanceGroup, 2, "G2", "+573003333333", ""),
		record("g3", models.ProvenanceGroup, 2, "G3", "+573004444444", ""),
	})

	assert.Equal(t, 2, s.ClearSource(models.ProvenanceGroup, 2))
	assert.Equal(t, 1, s.ClearSource(models.ProvenanceGroup, 0))
	assert.Equal(t, 0, s.ClearSource(models.ProvenanceBulk, 0))

	require.NoError(t, s.Remove("a"))
	assert.ErrorIs(t, s.Remove("a"), ErrUnknownContact)
	assert.Empty(t, s.Selection())
}

func TestSession_SwitchingTemplateDiscardsCustomValues(t *testing.T) {
	s := NewSession(nil)
	assert.ErrorIs(t, s.SetCustom("codigo", "x"), ErrNoTemplate)

	res := s.SetTemplate(models.Template{Channel: models.ChannelSMS, Content: "Hola {{nombre}}, código {{codigo}}"}, templating.Double)
	assert.Equal(t, []string{"codigo"}, res.Custom)
	require.NoError(t, s.SetCustom("codigo", "A1"))
	assert.ErrorIs(t, s.SetCustom("nombre", "x"), ErrUnknownVariable)
	assert.Equal(t, templating.CustomValues{"codigo": "A1"}, s.CustomValues())

	s.SetChatTemplate(models.ChatTemplate{Name: "promo", Body: "Hola {{nombre}}, tu {{codigo}} vence {{fecha}}"})
	assert.Equal(t, templating.CustomValues{"codigo": "", "fecha": ""}, s.CustomValues())
	assert.Equal(t, []string{"codigo", "fecha"}, s.Resolution().Custom)
}

func TestSession_Preview(t *testing.T) {
	s := NewSession(nil)
	_, err := s.Preview("")
	assert.ErrorIs(t, err, ErrNoTemplate)

	s.AddContacts([]models.ContactRecord{
		record("a", models.ProvenanceManual, 0, "Ana María", "+573001111111", ""),
		record("b", models.ProvenanceManual, 0, "", "+573002222222", ""),
	})
	s.SetChatTemplate(models.ChatTemplate{Body: "Hola {{primer_nombre}}, clave {{clave}}"})
	require.NoError(t, s.SetCustom("clave", "7"))

	out, err := s.Preview("a")
	require.NoError(t, err)
	assert.Equal(t, "Hola Ana, clave 7", out.Body)

	out, err = s.Preview("b")
	require.NoError(t, err)
	assert.Equal(t, "Hola {{primer_nombre}}, clave 7", out.Body)

	_, err = s.Preview("zzz")
	assert.ErrorIs(t, err, ErrUnknownContact)

	all, err := s.PreviewAll()
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestSession_ConcurrentUse(t *testing.T) {
	s := NewSession(nil)
	s.SetTemplate(models.Template{Channel: models.ChannelSMS, Content: "{{nombre}}"}, templating.Double)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.AddContacts([]models.ContactRecord{record("", models.ProvenanceBulk, 0, "", "+57300000000"+string(rune('0'+i%10)), "")})
			_, _ = s.PreviewAll()
		}(i)
	}
	wg.Wait()
	assert.Len(t, s.Selection(), 10)
}

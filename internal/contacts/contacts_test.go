package contacts

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"mass-messaging/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsValidPhone(t *testing.T) {
	cases := map[string]bool{
		"+573001234567":     true,
		"300 123 4567":      true,
		"(300) 123-4567":    true,
		"12345":             false,
		"+1234567890123456": false,
		"30012345ab":        false,
		"":                  false,
	}
	for in, want := range cases {
		assert.Equal(t, want, IsValidPhone(in), in)
	}
}

func TestIsValidEmail(t *testing.T) {
	assert.True(t, IsValidEmail("user@mail.com"))
	assert.True(t, IsValidEmail("first.last+tag@sub.example.co"))
	assert.False(t, IsValidEmail("user@mail"))
	assert.False(t, IsValidEmail("@mail.com"))
	assert.False(t, IsValidEmail("user mail.com"))
}

func TestClassify(t *testing.T) {
	phone, email, err := Classify(" 300-123-4567 ")
	require.NoError(t, err)
	assert.Equal(t, "3001234567", phone)
	assert.Empty(t, email)

	phone, email, err = Classify("ana@owo.co")
	require.NoError(t, err)
	assert.Empty(t, phone)
	assert.Equal(t, "ana@owo.co", email)

	_, _, err = Classify("ana@")
	assert.ErrorIs(t, err, ErrInvalidFormat)
	_, _, err = Classify("hello")
	assert.ErrorIs(t, err, ErrInvalidFormat)
}

func TestMerge_RejectsDuplicatesAndInvalid(t *testing.T) {
	existing := []models.ContactRecord{{Key: "1", Name: "Ana", Phone: "+573001234567", Email: "user@mail.com"}}
	incoming := []models.ContactRecord{
		{Key: "2", Email: "User@Mail.com"},
		{Key: "3", Phone: "573001234567"},
		{Key: "4", Phone: "+573009999999"},
		{Key: "5", Phone: "+57 300 999 9999"},
		{Key: "6", Phone: "12345"},
		{Key: "7", Name: "Only name"},
		{Key: "8", Email: "new@mail.com"},
	}

	res := Merge(existing, incoming)

	require.Len(t, res.Added, 2)
	assert.Equal(t, "4", res.Added[0].Key)
	assert.Equal(t, "8", res.Added[1].Key)

	reasons := map[string]Reason{}
	for _, r := range res.Rejected {
		reasons[r.Record.Key] = r.Reason
	}
	assert.Equal(t, map[string]Reason{
		"2": ReasonDuplicate,
		"3": ReasonDuplicate,
		"5": ReasonDuplicate,
		"6": ReasonInvalidFormat,
		"7": ReasonInvalidFormat,
	}, reasons)
}

func TestMerge_LocalNumberCollidesWithInternational(t *testing.T) {
	existing := []models.ContactRecord{{Key: "1", Phone: "+573001234567"}}
	res := Merge(existing, []models.ContactRecord{{Key: "2", Phone: "3001234567"}})
	require.Len(t, res.Rejected, 1)
	assert.Equal(t, ReasonDuplicate, res.Rejected[0].Reason)
}

func TestMerge_MalformedValuesNeverCollide(t *testing.T) {
	incoming := []models.ContactRecord{
		{Key: "a", Phone: "N/A", Email: "ana@mail.com"},
		{Key: "b", Phone: "N/A", Email: "luis@mail.com"},
		{Key: "c", Phone: "+573001111111", Email: "sin-correo"},
		{Key: "d", Phone: "+573002222222", Email: "sin-correo"},
		{Key: "e", Phone: "N/A"},
	}
	res := Merge(nil, incoming)
	require.Len(t, res.Added, 4)
	require.Len(t, res.Rejected, 1)
	assert.Equal(t, "e", res.Rejected[0].Record.Key)
	assert.Equal(t, ReasonInvalidFormat, res.Rejected[0].Reason)
}

func TestMerge_IsIdempotent(t *testing.T) {
	incoming := []models.ContactRecord{
		{Key: "a", Phone: "+573001111111"},
		{Key: "b", Email: "b@mail.com"},
		{Key: "c", Phone: "+573002222222", Email: "c@mail.com"},
	}
	first := Merge(nil, incoming)
	require.Len(t, first.Added, 3)
	assert.Empty(t, first.Rejected)

	selection := append([]models.ContactRecord{}, first.Added...)
	second := Merge(selection, incoming)
	assert.Empty(t, second.Added)
	require.Len(t, second.Rejected, 3)
	for _, r := range second.Rejected {
		assert.Equal(t, ReasonDuplicate, r.Reason)
	}
}

func TestMerge_DoesNotMutateInputs(t *testing.T) {
	existing := []models.ContactRecord{{Key: "1", Email: "a@mail.com"}}
	incoming := []models.ContactRecord{{Key: "2", Email: "A@MAIL.COM"}, {Key: "3", Email: "b@mail.com"}}
	Merge(existing, incoming)
	assert.Equal(t, "A@MAIL.COM", incoming[0].Email)
	assert.Len(t, existing, 1)
}

func TestFromBulkPaste(t *testing.T) {
	preview := FromBulkPaste("3001234567, +573001234567;12345\nana@mail.com\n\n bad@ ")

	require.Len(t, preview.Valid, 3)
	assert.Equal(t, "+573001234567", preview.Valid[0].Phone)
	assert.Equal(t, "+573001234567", preview.Valid[1].Phone)
	assert.Equal(t, "ana@mail.com", preview.Valid[2].Email)
	for _, r := range preview.Valid {
		assert.Empty(t, r.Name)
		assert.Equal(t, models.ProvenanceBulk, r.Provenance.Kind)
		assert.NotEmpty(t, r.Key)
	}

	require.Len(t, preview.Invalid, 2)
	assert.Equal(t, "12345", preview.Invalid[0].Token)
	assert.Equal(t, "bad@", preview.Invalid[1].Token)
	assert.NotEmpty(t, preview.Invalid[0].Reason)
}

func TestFromBulkPaste_CustomCountryCode(t *testing.T) {
	prev := DefaultCountryCode
	t.Cleanup(func() { DefaultCountryCode = prev })
	SetDefaultCountryCode("52")

	preview := FromBulkPaste("5512345678")
	require.Len(t, preview.Valid, 1)
	assert.Equal(t, "+525512345678", preview.Valid[0].Phone)
}

func TestFromManual(t *testing.T) {
	rec, err := FromManual("juan@owo.co", "")
	require.NoError(t, err)
	assert.Equal(t, "juan", rec.Name)
	assert.Equal(t, models.ProvenanceManual, rec.Provenance.Kind)
	assert.Equal(t, "manual", rec.Provenance.String())

	rec, err = FromManual("+57 300 123 4567", "Juan")
	require.NoError(t, err)
	assert.Equal(t, "+573001234567", rec.Phone)
	assert.Equal(t, "Juan", rec.Name)

	_, err = FromManual("not a contact", "x")
	assert.ErrorIs(t, err, ErrInvalidFormat)
}

func TestFromDirectoryAndGroups(t *testing.T) {
	dir := FromDirectory([]models.DirectoryContact{{ID: "u-9", Name: " Ana ", Phone: "+573001234567", Department: "Ventas"}})
	require.Len(t, dir, 1)
	assert.Equal(t, "directory:u-9", dir[0].Provenance.String())
	assert.Equal(t, "Ana", dir[0].Name)

	groups := FromGroups([]models.GroupContacts{
		{GroupID: 1, Members: []models.GroupMember{{ID: 10, Name: "A", Phone: "+573001111111"}}},
		{GroupID: 2, Members: []models.GroupMember{{ID: 11, Name: "A", Phone: "+573001111111"}}},
	})
	require.Len(t, groups, 2, "groups are concatenated, not deduplicated")
	assert.Equal(t, "group:1", groups[0].Provenance.String())
	assert.Equal(t, "group:2", groups[1].Provenance.String())
	assert.Equal(t, "10", groups[0].Provenance.SourceID)

	res := Merge(nil, groups)
	assert.Len(t, res.Added, 1)
	assert.Len(t, res.Rejected, 1)
}

type stubFetcher struct {
	calls   atomic.Int32
	members map[uint][]models.GroupMember
	fail    uint
}

func (s *stubFetcher) GroupMembers(ctx context.Context, id uint) ([]models.GroupMember, error) {
	s.calls.Add(1)
	if id == s.fail {
		return nil, errors.New("boom")
	}
	return s.members[id], nil
}

func TestResolveGroups(t *testing.T) {
	f := &stubFetcher{members: map[uint][]models.GroupMember{
		1: {{ID: 1, Name: "a"}},
		2: {{ID: 2, Name: "b"}, {ID: 3, Name: "c"}},
		3: nil,
	}}
	got, err := ResolveGroups(context.Background(), f, []uint{2, 1, 3})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, uint(2), got[0].GroupID)
	assert.Len(t, got[0].Members, 2)
	assert.Equal(t, uint(1), got[1].GroupID)
	assert.Equal(t, int32(3), f.calls.Load())
}

func TestResolveGroups_PropagatesError(t *testing.T) {
	f := &stubFetcher{members: map[uint][]models.GroupMember{}, fail: 7}
	_, err := ResolveGroups(context.Background(), f, []uint{1, 7})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "group 7")
}

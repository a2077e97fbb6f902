package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushabhsmehta/tour-messaging/internal/client"
	"github.com/rushabhsmehta/tour-messaging/internal/model"
)

type fakeSource struct {
	templates []client.RegisteredTemplate
	err       error
}

func (f fakeSource) ListTemplates(context.Context) ([]client.RegisteredTemplate, error) {
	return f.templates, f.err
}

type forgetter struct{ forgotten []string }

func (f *forgetter) Forget(name, language string) {
	f.forgotten = append(f.forgotten, name+"/"+language)
}

const bookingComponents = `[
	{"type":"BODY","text":"Hi {{1}}, your trip to {{2}} is confirmed. {{1}}, see you soon"},
	{"type":"BUTTONS","buttons":[
		{"type":"QUICK_REPLY","text":"Thanks"},
		{"type":"FLOW","text":"Pick seats","flow_id":123456,"flow_action":"navigate","navigate_screen":"SEATS"}
	]}
]`

func TestTemplateSync_StoresParsedTemplates(t *testing.T) {
	f := newFixture(t, &fakeTransport{})
	ctx := context.Background()

	require.NoError(t, f.store.SaveFlowDefaults(ctx, "booking", "en", []model.FlowDefault{
		{Index: 1, Text: "Pick seats", FlowCTA: "Choose", FlowToken: "tok-1"},
	}))

	cache := &forgetter{}
	sync := NewTemplateSync(fakeSource{templates: []client.RegisteredTemplate{
		{ID: "t1", Name: "booking", Language: "en", Status: "APPROVED", Category: "UTILITY", Components: json.RawMessage(bookingComponents)},
		{ID: "t2", Name: "broken", Language: "en", Components: json.RawMessage(`{"not":"a list"}`)},
	}}, f.store, cache)

	n, err := sync.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"booking/en"}, cache.forgotten)

	tpl, err := f.store.GetTemplate(ctx, "booking", "en")
	require.NoError(t, err)
	assert.Equal(t, "APPROVED", tpl.Status)
	assert.Equal(t, []string{"1", "2"}, tpl.Variables)
	require.Len(t, tpl.FlowDefaults, 1)
	d := tpl.FlowDefaults[0]
	assert.Equal(t, 1, d.Index)
	assert.Equal(t, "123456", d.FlowID)
	assert.Equal(t, "SEATS", d.NavigateScreen)
	assert.Equal(t, "Choose", d.FlowCTA, "learned CTA survives the sync")
	assert.Equal(t, "tok-1", d.FlowToken)
	require.NotNil(t, tpl.SyncedAt)
}

func TestTemplateSync_ListError(t *testing.T) {
	f := newFixture(t, &fakeTransport{})
	_, err := NewTemplateSync(fakeSource{err: errors.New("unauthorized")}, f.store, nil).Sync(context.Background())
	assert.Error(t, err)
}

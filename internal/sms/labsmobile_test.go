package sms

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"mass-messaging/internal/config"
	"mass-messaging/internal/logger"
	"mass-messaging/pkg/models"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	sendURL    = "https://sms.test/json/send"
	balanceURL = "https://sms.test/json/balance"
)

func testClient(t *testing.T, testMode bool) *Client {
	t.Helper()
	c := NewClient(&config.Config{
		LabsMobileURL:        sendURL,
		LabsMobileBalanceURL: balanceURL,
		LabsMobileUsername:   "user@owo.test",
		LabsMobileToken:      "secret",
		LabsMobileSender:     "OWO",
		LabsMobileTestMode:   testMode,
		HTTPTimeout:          5 * time.Second,
	}, logger.Nop())
	httpmock.ActivateNonDefault(c.HTTPClient())
	t.Cleanup(httpmock.DeactivateAndReset)
	return c
}

func TestFormatMSISDN(t *testing.T) {
	assert.Equal(t, "573001234567", FormatMSISDN("+57 300 123 4567"))
	assert.Equal(t, "573001234567", FormatMSISDN("300-123-4567"))
	assert.Equal(t, "14155550100", FormatMSISDN("+1 (415) 555-0100"))
}

func TestSendSMS_SameTextInOneRequest(t *testing.T) {
	c := testClient(t, true)

	var got sendPayload
	httpmock.RegisterResponder(http.MethodPost, sendURL, func(req *http.Request) (*http.Response, error) {
		user, pass, ok := req.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "user@owo.test", user)
		assert.Equal(t, "secret", pass)
		require.NoError(t, json.NewDecoder(req.Body).Decode(&got))
		return httpmock.NewStringResponse(200, `{"code":"0","message":"Message has been successfully sent","subid":"s-1","credits":"2.5"}`), nil
	})

	resp, err := c.SendSMS(context.Background(), models.SMSSendRequest{
		Message: "Hola",
		Recipients: []models.SMSRecipient{
			{Phone: "+573001111111", Message: "Hola"},
			{Phone: "3002222222", Message: "Hola"},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, httpmock.GetTotalCallCount())
	assert.True(t, resp.Success)
	assert.Equal(t, 2, resp.Sent)
	assert.Equal(t, 2.5, resp.CreditsUsed)

	assert.Equal(t, "OWO", got.TPOA)
	assert.Equal(t, "1", got.Test)
	assert.Equal(t, []msisdn{{MSISDN: "573001111111"}, {MSISDN: "573002222222"}}, got.Recipient)
}

func TestSendSMS_PersonalizedOneByOne(t *testing.T) {
	c := testClient(t, false)

	httpmock.RegisterResponder(http.MethodPost, sendURL, func(req *http.Request) (*http.Response, error) {
		var p sendPayload
		require.NoError(t, json.NewDecoder(req.Body).Decode(&p))
		assert.Empty(t, p.Test)
		require.Len(t, p.Recipient, 1)
		if p.Recipient[0].MSISDN == "573002222222" {
			return httpmock.NewStringResponse(200, `{"code":"35","message":"The account has no enough credit"}`), nil
		}
		return httpmock.NewStringResponse(200, `{"code":0,"subid":"s-`+p.Recipient[0].MSISDN+`","credits":1}`), nil
	})

	resp, err := c.SendSMS(context.Background(), models.SMSSendRequest{
		Message: "Hola {{nombre}}",
		Recipients: []models.SMSRecipient{
			{Phone: "+573001111111", Name: "Ana", Message: "Hola Ana"},
			{Phone: "+573002222222", Name: "Luis", Message: "Hola Luis"},
			{Phone: "+573003333333", Name: "Eva", Message: "Hola Eva"},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, 3, httpmock.GetTotalCallCount())
	assert.True(t, resp.Success)
	assert.Equal(t, 2, resp.Sent)
	assert.Equal(t, 1, resp.Failed)
	assert.Equal(t, 2.0, resp.CreditsUsed)
	require.Len(t, resp.Messages, 3)
	assert.Equal(t, "s-573001111111", resp.Messages[0].MessageID)
	assert.Equal(t, "The account has no enough credit", resp.Messages[1].Error)
}

func TestSendSMS_RejectedBatch(t *testing.T) {
	c := testClient(t, false)
	httpmock.RegisterResponder(http.MethodPost, sendURL,
		httpmock.NewStringResponder(200, `{"code":"23","message":"Missing tpoa"}`))

	resp, err := c.SendSMS(context.Background(), models.SMSSendRequest{
		Message:    "Hola",
		Recipients: []models.SMSRecipient{{Phone: "+573001111111"}},
	})
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Equal(t, 1, resp.Failed)
	assert.Equal(t, "Missing tpoa", resp.Error)
}

func TestSendSMS_TransportError(t *testing.T) {
	c := testClient(t, false)
	httpmock.RegisterResponder(http.MethodPost, sendURL, httpmock.NewStringResponder(502, "bad gateway"))

	_, err := c.SendSMS(context.Background(), models.SMSSendRequest{
		Message:    "Hola",
		Recipients: []models.SMSRecipient{{Phone: "+573001111111"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestSendSMS_NotConfigured(t *testing.T) {
	c := NewClient(&config.Config{}, logger.Nop())
	_, err := c.SendSMS(context.Background(), models.SMSSendRequest{})
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = c.Credits(context.Background())
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestCredits(t *testing.T) {
	c := testClient(t, false)
	httpmock.RegisterResponder(http.MethodGet, balanceURL, httpmock.NewStringResponder(200, `{"code":0,"credits":"153.25"}`))

	credits, err := c.Credits(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 153.25, credits)
}

package ticket

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTicketPayloadRoundTrips(t *testing.T) {
	userID, deviceID := uuid.New(), uuid.New()

	gotUser, gotDevice, err := parseTicketPayload(userID.String() + ":" + deviceID.String())

	require.NoError(t, err)
	assert.Equal(t, userID, gotUser)
	assert.Equal(t, deviceID, gotDevice)
}

func TestParseTicketPayloadRejectsMissingSeparator(t *testing.T) {
	_, _, err := parseTicketPayload("not-a-valid-payload")
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestParseTicketPayloadRejectsBadUUID(t *testing.T) {
	_, _, err := parseTicketPayload("not-a-uuid:" + uuid.New().String())
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestDeviceKeyAndTicketKeyAreNamespaced(t *testing.T) {
	userID, deviceID, ticketID := uuid.New(), uuid.New(), uuid.New()
	assert.Contains(t, deviceKey(userID, deviceID), "wsd:device:")
	assert.Contains(t, ticketKey(ticketID), "wsd:ticket:")
}

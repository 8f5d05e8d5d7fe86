package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActionGUIDDeterministic(t *testing.T) {
	cc := ClientConfig{
		ClientID:        "i2xd_10_0_0_5",
		Action:          ActionLoadRun,
		Flavor:          "domestic/V",
		PresentationID:  "1",
		DurationSeconds: 60,
	}
	g1 := ActionGUID(cc)
	g2 := ActionGUID(cc)
	assert.Equal(t, g1, g2, "identical fields must produce identical digests")
	assert.Len(t, g1, 32, "md5 hex digest is 32 characters")
}

func TestActionGUIDChangesWithAnyField(t *testing.T) {
	base := ClientConfig{ClientID: "c1", Action: ActionLoad, Flavor: "domestic/V", PresentationID: "1"}
	baseGUID := ActionGUID(base)

	variants := []ClientConfig{
		{ClientID: "c2", Action: base.Action, Flavor: base.Flavor, PresentationID: base.PresentationID},
		{ClientID: base.ClientID, Action: ActionRun, Flavor: base.Flavor, PresentationID: base.PresentationID},
		{ClientID: base.ClientID, Action: base.Action, Flavor: "other", PresentationID: base.PresentationID},
		{ClientID: base.ClientID, Action: base.Action, Flavor: base.Flavor, PresentationID: "2"},
	}
	for _, v := range variants {
		assert.NotEqual(t, baseGUID, ActionGUID(v), "changing one field must change the digest")
	}
}

func TestClientValidateI1RequiresSubstituteUser(t *testing.T) {
	c := Client{ID: "i1_10_0_0_1", Family: FamilyI1, Transport: TransportShell}
	err := c.Validate()
	require.Error(t, err)

	c.SubstituteUser = "dgadmin"
	require.NoError(t, c.Validate())
}

func TestClientValidateI1DatagramDoesNotRequireSubstituteUser(t *testing.T) {
	c := Client{ID: "i1_224_1_1_77", Family: FamilyI1, Transport: TransportDatagram}
	require.NoError(t, c.Validate())
}

func TestDeriveID(t *testing.T) {
	assert.Equal(t, "i2xd_10_0_0_5", DeriveID(FamilyI2XD, "10.0.0.5"))
}

func TestDefaultPresentationID(t *testing.T) {
	assert.Equal(t, "local", DefaultPresentationID(FamilyI1))
	assert.Equal(t, "1", DefaultPresentationID(FamilyI2HD))
}

func TestClientConfigValidateSeparateLoadRun(t *testing.T) {
	cc := ClientConfig{ClientID: "c1", SeparateLoadRun: true, LoadOffset: -20, RunOffset: -12}
	require.NoError(t, cc.Validate())

	bad := ClientConfig{ClientID: "c1", SeparateLoadRun: true, LoadOffset: -5, RunOffset: -12}
	require.Error(t, bad.Validate())
}

func TestEventValidateCuePresentationNeedsClientConfig(t *testing.T) {
	e := Event{DisplayName: "Noon", Category: CategoryCuePresentation}
	require.Error(t, e.Validate())

	e.ClientConfigs = map[string]ClientConfig{"g1": {ClientID: "c1"}}
	require.NoError(t, e.Validate())
}

func TestEventSchedulable(t *testing.T) {
	assert.False(t, Event{Enabled: false}.Schedulable())
	assert.True(t, Event{Enabled: true}.Schedulable())
}

func TestFamilyNormalized(t *testing.T) {
	assert.Equal(t, "i2", FamilyI2XD.Normalized())
	assert.Equal(t, "i2", FamilyI2JR.Normalized())
	assert.Equal(t, "i1", FamilyI1.Normalized())
}

func TestTransportDefaultPort(t *testing.T) {
	assert.Equal(t, 22, TransportShell.DefaultPort())
	assert.Equal(t, 23, TransportTelnet.DefaultPort())
	assert.Equal(t, 7787, TransportDatagram.DefaultPort())
	assert.Equal(t, 0, TransportSubprocess.DefaultPort())
}

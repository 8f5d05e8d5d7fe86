package dispatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starscheduler/starscheduler/internal/model"
)

func TestPlanI2LoadRunShell(t *testing.T) {
	cl := model.Client{ID: "i2xd_10_0_0_5", Family: model.FamilyI2XD, Transport: model.TransportShell}
	cc := model.ClientConfig{
		ClientID: cl.ID, Action: model.ActionLoadRun,
		Flavor: "domestic/V", PresentationID: "1", DurationSeconds: 60,
	}
	steps := Plan(cl, cc)
	require.Len(t, steps, 1)
	assert.Equal(t, `"C:\Program Files (x86)\TWC\I2\exec.exe" loadRunPres(Flavor="domestic/V",Duration="1800",PresentationId="1")`, steps[0].Command)
}

func TestPlanI1SeparateLoadRunTelnet(t *testing.T) {
	cl := model.Client{ID: "i1_sub", Family: model.FamilyI1, Transport: model.TransportTelnet, SubstituteUser: "dgadmin"}
	cc := model.ClientConfig{
		ClientID: cl.ID, Action: model.ActionLoadRun, Flavor: "domestic/V",
		PresentationID: "local", SeparateLoadRun: true, LoadOffset: -20, RunOffset: -12,
	}
	steps := Plan(cl, cc)
	require.Len(t, steps, 2)
	assert.Equal(t, "load", steps[0].OffsetAt)
	assert.Equal(t, `runomni /twc/util/load.pyc local Domestic/v`, steps[0].Command)
	assert.Equal(t, "run", steps[1].OffsetAt)
	assert.Equal(t, `runomni /twc/util/run.pyc local`, steps[1].Command)
}

func TestPlanI1CancelIsNoOp(t *testing.T) {
	cl := model.Client{ID: "i1_sub", Family: model.FamilyI1, Transport: model.TransportShell, SubstituteUser: "dgadmin"}
	cc := model.ClientConfig{ClientID: cl.ID, Action: model.ActionCancel}
	steps := Plan(cl, cc)
	require.Len(t, steps, 1)
	assert.True(t, steps[0].Skip)
}

func TestPlanI2LDLToggleIsNoOp(t *testing.T) {
	cl := model.Client{ID: "i2hd_1", Family: model.FamilyI2HD, Transport: model.TransportShell}
	cc := model.ClientConfig{ClientID: cl.ID, Action: model.ActionLDLToggle}
	steps := Plan(cl, cc)
	require.Len(t, steps, 1)
	assert.True(t, steps[0].Skip)
}

func TestPlanI1LDLToggle(t *testing.T) {
	cl := model.Client{ID: "i1_sub", Family: model.FamilyI1, Transport: model.TransportTelnet, SubstituteUser: "dgadmin"}
	cc := model.ClientConfig{ClientID: cl.ID, Action: model.ActionLDLToggle, LDLState: "1"}
	steps := Plan(cl, cc)
	require.Len(t, steps, 1)
	assert.Equal(t, `runomni /twc/util/toggleNationalLDL.pyc 1`, steps[0].Command)
}

func TestPlanDatagramCancel(t *testing.T) {
	cl := model.Client{ID: "dg1", Family: model.FamilyI2HD, Transport: model.TransportDatagram, Hostname: "224.1.1.77", Port: 7787}
	cc := model.ClientConfig{ClientID: cl.ID, Action: model.ActionCancel, PresentationID: "1"}
	steps := Plan(cl, cc)
	require.Len(t, steps, 1)
	assert.Equal(t, `cancelPres(File=0,PresentationId=1)`, steps[0].Command)
	assert.Equal(t, StepDatagram, steps[0].Kind)
}

func TestPlanDatagramLoadRunPrependsFileAndVideoBehind(t *testing.T) {
	cl := model.Client{ID: "dg1", Family: model.FamilyI2HD, Transport: model.TransportDatagram}
	cc := model.ClientConfig{ClientID: cl.ID, Action: model.ActionLoadRun, Flavor: "domestic/V", PresentationID: "1", DurationSeconds: 60, Logo: "0"}
	steps := Plan(cl, cc)
	require.Len(t, steps, 2)
	assert.Contains(t, steps[0].Command, "File=0,VideoBehind=000")
}

func TestPlanDefaultPresentationID(t *testing.T) {
	i1 := model.Client{ID: "i1_sub", Family: model.FamilyI1, Transport: model.TransportShell, SubstituteUser: "dgadmin"}
	cc := model.ClientConfig{ClientID: i1.ID, Action: model.ActionRun}
	steps := Plan(i1, cc)
	require.Len(t, steps, 1)
	assert.Equal(t, `runomni /twc/util/run.pyc local`, steps[0].Command)

	i2 := model.Client{ID: "i2hd_1", Family: model.FamilyI2HD, Transport: model.TransportShell}
	steps = Plan(i2, model.ClientConfig{ClientID: i2.ID, Action: model.ActionRun})
	require.Len(t, steps, 1)
	assert.Contains(t, steps[0].Command, `PresentationId="1"`)
}

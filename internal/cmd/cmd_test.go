package cmd

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiratut/v4/internal/store"
	"github.com/kiratut/v4/internal/sysmetrics"
)

func TestWithExitCodeWrapsAndUnwraps(t *testing.T) {
	base := errors.New("boom")
	err := withExitCode(exitWarnings, base)
	require.Error(t, err)

	var ec exitCoder
	require.True(t, errors.As(err, &ec))
	assert.Equal(t, exitWarnings, ec.ExitCode())
	assert.Equal(t, "boom", err.Error())
	assert.ErrorIs(t, err, base)
}

func TestWithExitCodeNilErrorStaysNil(t *testing.T) {
	assert.NoError(t, withExitCode(exitError, nil))
}

func TestExitIfAlertsNoneReturnsNil(t *testing.T) {
	assert.NoError(t, exitIfAlerts(nil))
}

func TestExitIfAlertsSomeReturnsWarningCode(t *testing.T) {
	err := exitIfAlerts([]sysmetrics.Alert{{Metric: "cpu", Percent: 99, Limit: 80}})
	require.Error(t, err)
	var ec exitCoder
	require.True(t, errors.As(err, &ec))
	assert.Equal(t, exitWarnings, ec.ExitCode())
}

func TestProjectExportBriefProjectsSubsetOfFields(t *testing.T) {
	rows := []store.VacancyRow{
		{ID: 1, Title: "Go Dev", Area: "Remote", URL: "http://x/1", EmployerID: "e1"},
	}
	out, err := projectExport(rows, "brief")
	require.NoError(t, err)
	assert.Contains(t, string(out), `"title": "Go Dev"`)
	assert.NotContains(t, string(out), "EmployerID")
}

func TestProjectExportFullIncludesAllFields(t *testing.T) {
	rows := []store.VacancyRow{
		{ID: 1, Title: "Go Dev", Area: "Remote", URL: "http://x/1", EmployerID: "e1"},
	}
	out, err := projectExport(rows, "full")
	require.NoError(t, err)
	assert.Contains(t, string(out), `"EmployerID"`)
}

func TestTaskInfoRequiresExactlyOneArg(t *testing.T) {
	err := taskInfoCmd.Args(taskInfoCmd, []string{})
	assert.Error(t, err)

	err = taskInfoCmd.Args(taskInfoCmd, []string{"t1"})
	assert.NoError(t, err)
}

func TestExportRequiresExactlyOneArg(t *testing.T) {
	err := exportCmd.Args(exportCmd, []string{})
	assert.Error(t, err)

	err = exportCmd.Args(exportCmd, []string{"out.json"})
	assert.NoError(t, err)
}

package logging

import (
	"encoding/json"
	"errors"
	"testing"

	"go.viam.com/test"
)

func TestLevelNamesRoundTrip(t *testing.T) {
	for _, tc := range []struct {
		level Level
		name  string
	}{
		{DEBUG, "Debug"},
		{INFO, "Info"},
		{WARN, "Warn"},
		{ERROR, "Error"},
	} {
		test.That(t, tc.level.String(), test.ShouldEqual, tc.name)
		parsed, err := LevelFromString(tc.name)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, parsed, test.ShouldEqual, tc.level)
	}
}

func TestLevelFromStringAcceptsAliases(t *testing.T) {
	parsed, err := LevelFromString("warning")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, parsed, test.ShouldEqual, WARN)

	parsed, err = LevelFromString("ERROR")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, parsed, test.ShouldEqual, ERROR)

	_, err = LevelFromString("chatty")
	test.That(t, errors.Is(err, ErrUnknownLevel), test.ShouldBeTrue)
}

func TestLevelJSONRoundTrip(t *testing.T) {
	data, err := json.Marshal(WARN)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, string(data), test.ShouldEqual, `"Warn"`)

	var parsed Level
	test.That(t, json.Unmarshal([]byte(`"Info"`), &parsed), test.ShouldBeNil)
	test.That(t, parsed, test.ShouldEqual, INFO)
}

func TestLevelJSONRejectsBadInput(t *testing.T) {
	var parsed Level
	test.That(t, json.Unmarshal([]byte(`7`), &parsed), test.ShouldNotBeNil)
	test.That(t, json.Unmarshal([]byte(`"deafening"`), &parsed), test.ShouldNotBeNil)
	test.That(t, json.Unmarshal([]byte(`{}`), &parsed), test.ShouldNotBeNil)
}

func TestSubloggerScopesName(t *testing.T) {
	log, err := New(ERROR)
	test.That(t, err, test.ShouldBeNil)

	sub := log.Sublogger("icp").Sublogger("correspondence")
	zl, ok := sub.(*zapLogger)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, zl.name, test.ShouldEqual, "icp.correspondence")
}

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseOperationClasses(t *testing.T) {
	classes := parseOperationClasses("generation=10/1m/5, edit=20/30s/2")

	require.Len(t, classes, 2)
	require.Equal(t, OperationClass{Limit: 10, Window: time.Minute, Cost: 5}, classes["generation"])
	require.Equal(t, OperationClass{Limit: 20, Window: 30 * time.Second, Cost: 2}, classes["edit"])
}

func TestParseOperationClassesSkipsMalformed(t *testing.T) {
	classes := parseOperationClasses("ok=5/1m/1,bad,noeq/1m/1,zero=0/1m/1,badwin=5/xx/1,negcost=5/1m/-1")

	require.Len(t, classes, 1)
	require.Contains(t, classes, "ok")
}

func TestParseOperationClassesNormalizesNames(t *testing.T) {
	classes := parseOperationClasses(" Generation =10/1m/5")

	_, ok := classes["generation"]
	require.True(t, ok)
}

func TestParseOperationClassesZeroCostAllowed(t *testing.T) {
	classes := parseOperationClasses("preview=10/1m/0")

	require.Equal(t, int64(0), classes["preview"].Cost)
}

func TestClassLookup(t *testing.T) {
	cfg := Config{OperationClasses: parseOperationClasses("generation=10/1m/5")}

	class, ok := cfg.Class(" GENERATION ")
	require.True(t, ok)
	require.Equal(t, 10, class.Limit)

	_, ok = cfg.Class("teleport")
	require.False(t, ok)
}

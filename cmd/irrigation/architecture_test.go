package main

import (
	"testing"

	"irrigation/testutil"
)

func TestCLIUsesServiceOnly(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".",
		testutil.AnyOf(testutil.InfraImportForbidden, testutil.DriverImportForbidden),
		"the CLI goes through internal/core")
}

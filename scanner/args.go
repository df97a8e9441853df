package scanner

// Extra flags injected by mode and store attachment. Order in the final
// argument list is fixed: base flags, enterprise flags, optimization flag,
// scan path, rebase directory.
var (
	enterpriseFlags  = []string{"--enterprise-mode", "--ai-enhanced"}
	optimizationFlag = "--store-optimized"
)

// composeArgs builds the scanner argument list. The ordering is part of the
// child process contract and covered by tests; do not reorder.
func composeArgs(baseFlags []string, enterprise, storeAttached bool, scanPath, workDir string) []string {
	args := make([]string, 0, len(baseFlags)+len(enterpriseFlags)+5)
	args = append(args, baseFlags...)
	if enterprise {
		args = append(args, enterpriseFlags...)
	}
	if storeAttached {
		args = append(args, optimizationFlag)
	}
	args = append(args, "--path", scanPath)
	args = append(args, "--rebase-dir", workDir)
	return args
}

package main

// Build-time variables 'version', 'commit' and 'date' are declared in
// root.go and populated via -ldflags.

// main is the entry point for the linkmark application. Execute (defined in
// root.go) sets up and runs the root Cobra command; error printing and exit
// codes follow Cobra's RunE pattern.
func main() {
	Execute()
}

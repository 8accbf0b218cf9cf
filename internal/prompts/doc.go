// Package prompts contains the prompt text and canned user-facing copy
// used by Animalia.
//
// Prompt text is Go code rather than config files because it is program
// logic: templates use fmt.Sprintf interpolation and can be validated by
// tests. User-facing configuration lives in config.yaml; this package
// holds the instructions we send to the model and the fixed strings the
// front ends show around its answers.
//
// Convention: each audience gets its own file (system.go for the model,
// slack.go and cli.go for the front ends) with exported functions that
// accept the dynamic parts and return the fully interpolated text.
package prompts

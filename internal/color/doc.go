// Package color provides the terminal palette for relctl's CLI output.
//
// Colors are semantic and adapt to light and dark terminals:
//   - Success: succeeded releases, present prerequisites
//   - Warning: rollbacks
//   - Error: failed releases, missing prerequisites
//   - Info: in-flight states
//   - Muted: de-emphasized text
//
// lipgloss downgrades or strips colors when the output is not a terminal or
// NO_COLOR is set.
//
// # Usage Example
//
//	fmt.Println(color.Outcome(rec.Outcome))
//	fmt.Println(color.State(release.StateRollingBack))
package color

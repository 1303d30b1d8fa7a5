// Package rule evaluates detection rules against extracted page text.
//
// Each rule kind compiles into its own evaluator variant at policy load time,
// so malformed patterns abort a run before any page is fetched. Evaluation is
// pure: text in, raw matches out. Matches are filtered downstream by the
// context gate and suppression list in [github.com/partnerwatch/ppscan/pkg/scan].
package rule

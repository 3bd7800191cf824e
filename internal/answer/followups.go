package answer

// FollowUp is a canned question offered after an answer.
type FollowUp struct {
	Label string `json:"label"`
	Query string `json:"query"`
}

// FollowUps lists the follow-up actions in display order.
var FollowUps = []FollowUp{
	{Label: "Explain Concepts", Query: "Explain the core concepts and logic in the code above."},
	{Label: "Generate Test", Query: "Write a unit test for the code discussed above."},
	{Label: "Security Check", Query: "Are there any security vulnerabilities or bad practices here?"},
}

// FollowUpQuery returns the canned query for label.
func FollowUpQuery(label string) (string, bool) {
	for _, f := range FollowUps {
		if f.Label == label {
			return f.Query, true
		}
	}
	return "", false
}

package quiz

// Response pairs a question with the option a student selected ("" when unanswered).
type Response struct {
	Question Question
	Selected string
}

// Score grades the responses. totalMarks is the sum of every question's marks, answered or not;
// score is the sum of marks of the questions whose selection matches the correct option.
func Score(responses []Response) (score, totalMarks int) {
	for _, r := range responses {
		totalMarks += r.Question.Marks
		if r.Question.IsCorrect(r.Selected) {
			score += r.Question.Marks
		}
	}
	return score, totalMarks
}

// ScoreSelections grades a whole answer sheet: selections maps question IDs to the selected option.
// Questions missing from selections count as unanswered; selections for unknown questions are ignored.
func ScoreSelections(questions []Question, selections map[string]string) (score, totalMarks int) {
	responses := make([]Response, 0, len(questions))
	for _, q := range questions {
		responses = append(responses, Response{Question: q, Selected: selections[q.ID]})
	}
	return Score(responses)
}

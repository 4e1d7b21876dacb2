package bot

// Static conversational replies.
const (
	GreetingText = "I'm Interviewbud, a bot who asks you job interview questions. " +
		"I don't know whether your answers are any good or not, I'm just a bot here to help you practice."

	AttachmentText = "Sorry, you can't answer an interview question with an attachment. If only. " +
		"Please type your answer as text."

	HelpText = "Need a hand? I'm only a bot, but a real human reads hello@interviewbud.com. " +
		"Send \"skip\" to get a different question."

	SkipText = "No problem, skipping that one."

	ShortAnswerText = "Hmm, that doesn't look like an answer. Send a real answer, or \"skip\" to move on."

	// QuestionCardTitle is the card title every question is rendered under.
	QuestionCardTitle = "Question"
)

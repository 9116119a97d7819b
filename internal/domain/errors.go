package domain

import "errors"

var (
	// ErrSessionNotFound is returned when a quiz session has not been started or was discarded.
	ErrSessionNotFound = errors.New("quiz session not found")
	// ErrSessionExpired is returned when an answer arrives after the time limit.
	ErrSessionExpired = errors.New("quiz session time limit exceeded")
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrNoQuestions indicates the question set is empty.
	ErrNoQuestions = errors.New("quiz has no questions")
	// ErrQuestionNotFound indicates a submitted question ID is invalid.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrOptionNotFound indicates a multiple-choice answer is not one of the options.
	ErrOptionNotFound = errors.New("option not found")
	// ErrInvalidQuestion is wrapped by Question.Validate failures.
	ErrInvalidQuestion = errors.New("invalid question")
	// ErrOffline is recorded when no connectivity signal is present.
	ErrOffline = errors.New("offline")
	// ErrNoBin is returned when no remote document identifier is known yet.
	ErrNoBin = errors.New("no remote bin configured")
)

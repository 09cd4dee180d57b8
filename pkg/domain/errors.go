package domain

import "errors"

var (
	ErrEmptyPrompt      = errors.New("please enter a prompt")
	ErrNoImages         = errors.New("please upload at least one image")
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrInvalidImage     = errors.New("invalid input image")
	ErrNotReady         = errors.New("model is not loaded yet, please wait for the model to finish loading")
	ErrInferenceFailed  = errors.New("error generating image")
	ErrNotFound         = errors.New("not found")
)

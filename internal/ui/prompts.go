package ui

import (
	"errors"
	"fmt"
	"slices"

	"github.com/AlecAivazis/survey/v2"
)

// ErrNonInteractive is returned by prompts that need an answer the user
// can't give in non-interactive mode
var ErrNonInteractive = errors.New("input required but running non-interactively")

// PromptYesNo prompts the user for a yes/no answer. Non-interactive mode
// takes the default.
func (u *UI) PromptYesNo(prompt string, defaultYes bool) (bool, error) {
	if u.nonInteractive {
		return defaultYes, nil
	}

	var result bool
	p := &survey.Confirm{
		Message: prompt,
		Default: defaultYes,
	}
	err := survey.AskOne(p, &result)
	return result, err
}

// PromptInput prompts the user for text input. Non-interactive mode takes
// the default.
func (u *UI) PromptInput(prompt, defaultValue string) (string, error) {
	if u.nonInteractive {
		return defaultValue, nil
	}

	var result string
	p := &survey.Input{
		Message: prompt,
		Default: defaultValue,
	}
	err := survey.AskOne(p, &result)
	return result, err
}

// PromptPassword prompts the user for password input (hidden)
func (u *UI) PromptPassword(prompt string) (string, error) {
	if u.nonInteractive {
		return "", ErrNonInteractive
	}

	var result string
	p := &survey.Password{
		Message: prompt,
	}
	err := survey.AskOne(p, &result)
	return result, err
}

// PromptSelect prompts the user to select from a list and returns the index
func (u *UI) PromptSelect(prompt string, options []string, defaultIndex int) (int, error) {
	if len(options) == 0 {
		return -1, fmt.Errorf("nothing to select")
	}
	if u.nonInteractive {
		if defaultIndex < 0 || defaultIndex >= len(options) {
			return -1, ErrNonInteractive
		}
		return defaultIndex, nil
	}

	var selected string
	p := &survey.Select{
		Message: prompt,
		Options: options,
	}
	if defaultIndex >= 0 && defaultIndex < len(options) {
		p.Default = options[defaultIndex]
	}
	if err := survey.AskOne(p, &selected); err != nil {
		return -1, err
	}

	idx := slices.Index(options, selected)
	if idx < 0 {
		return -1, fmt.Errorf("selected option not found")
	}
	return idx, nil
}

// PromptInputWithValidation prompts until validate accepts the answer
func (u *UI) PromptInputWithValidation(prompt, defaultValue string, validate func(string) error) (string, error) {
	if u.nonInteractive {
		if err := validate(defaultValue); err != nil {
			return "", fmt.Errorf("%w: %s: %v", ErrNonInteractive, prompt, err)
		}
		return defaultValue, nil
	}

	var result string
	p := &survey.Input{
		Message: prompt,
		Default: defaultValue,
	}
	check := func(ans any) error {
		s, _ := ans.(string)
		return validate(s)
	}
	err := survey.AskOne(p, &result, survey.WithValidator(check))
	return result, err
}

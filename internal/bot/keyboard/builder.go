package keyboard

import (
	telebot "gopkg.in/telebot.v3"
)

// Callback identifiers carried by inline buttons.
const (
	CallbackGenderFemale = "gender_female"
	CallbackGenderMale   = "gender_male"
	CallbackConfirmReset = "confirm_reset"
	CallbackCancelReset  = "cancel_reset"
	CallbackDone         = "done"
	CallbackLater        = "later"
)

// Texts resolves button labels.
type Texts interface {
	T(key string) string
}

// Builder creates the inline keyboards of the bot.
type Builder struct {
	texts Texts
}

// NewBuilder returns a Builder that labels buttons through texts.
func NewBuilder(texts Texts) *Builder {
	return &Builder{texts: texts}
}

// Gender builds the gender choice.
func (b *Builder) Gender() (*telebot.ReplyMarkup, error) {
	return NewInlineKeyboard().
		AddRow(
			InlineButton{Text: b.texts.T("buttons.female"), Unique: CallbackGenderFemale},
			InlineButton{Text: b.texts.T("buttons.male"), Unique: CallbackGenderMale},
		).
		Build()
}

// ResetConfirm builds the confirm and cancel buttons of /reset.
func (b *Builder) ResetConfirm() (*telebot.ReplyMarkup, error) {
	return NewInlineKeyboard().
		AddRow(
			InlineButton{Text: b.texts.T("buttons.confirm_reset"), Unique: CallbackConfirmReset},
			InlineButton{Text: b.texts.T("buttons.cancel_reset"), Unique: CallbackCancelReset},
		).
		Build()
}

// Reminder builds the buttons attached to every reminder.
func (b *Builder) Reminder() (*telebot.ReplyMarkup, error) {
	return NewInlineKeyboard().
		AddRow(
			InlineButton{Text: b.texts.T("buttons.done"), Unique: CallbackDone},
			InlineButton{Text: b.texts.T("buttons.later"), Unique: CallbackLater},
		).
		Build()
}

package response

// Canonical wording. These strings are audited by the policy tests, so edits
// must keep them free of diagnosis, dosing and delay-of-care language.
const (
	EmergencyWarningText = "This may be a medical emergency. Call emergency services (for example 911 or your local emergency number) " +
		"or go to the nearest emergency department now. If you are having thoughts of harming yourself, call or text 988 " +
		"(Suicide & Crisis Lifeline, US) or your local crisis line. This service cannot provide emergency care."

	DisclaimerText = "This is general information only, not medical advice. This service does not diagnose or prescribe. " +
		"Always consult a qualified healthcare provider about your situation."

	DefaultSummary = "- Here is some general information based on your description.\n" +
		"- A healthcare professional can give advice that fits your situation."

	DefaultGeneralInformation = "- Many symptoms have more than one possible cause, and only an examination can tell them apart.\n" +
		"- Keeping notes on when symptoms started and how they change can help a clinician."

	DefaultWhenToSeeDoctor = "- See a doctor if symptoms get worse, do not improve within a few days, or worry you.\n" +
		"- Seek emergency care right away for trouble breathing, chest pain, fainting or severe bleeding."

	EmergencySummary = "- What you describe can be a sign of a medical emergency.\n" +
		"- Get emergency help now."

	EmergencyGeneralInformation = "- Emergency teams can assess and treat symptoms like these quickly.\n" +
		"- If you can, stay with someone and keep your phone nearby."

	EmergencyWhenToSeeDoctor = "- Call emergency services now or go to the nearest emergency department.\n" +
		"- Do not drive yourself if you feel faint, confused or short of breath."

	// Reply is the short plain-text companion to the markdown answer.
	Reply = "Here is information based on your description. This is not medical advice."
)

// EmergencyContent returns the fixed content used when an emergency answer is
// produced without the language model. selfHarm switches to crisis-line wording.
func EmergencyContent(selfHarm bool) map[SectionKey]string {
	if selfHarm {
		return map[SectionKey]string{
			KeySummary: Bullets([]string{
				"You may be in immediate danger, and you deserve support right now.",
				"If you are in the U.S., call or text 988 (Suicide & Crisis Lifeline).",
				"If you are in immediate danger, call 911 or your local emergency number.",
			}),
			KeyGeneralInformation: Bullets([]string{
				"Crisis counselors are available at any hour and the call is free and confidential.",
				"Talking to someone you trust can help; try not to stay alone.",
			}),
			KeyWhenToSeeDoctor: Bullets([]string{
				"Call 911 or your local emergency number now if you might act on these thoughts.",
				"Reach out to someone you trust and stay with them.",
			}),
		}
	}
	return map[SectionKey]string{
		KeySummary: EmergencySummary,
		KeyGeneralInformation: Bullets([]string{
			"Symptoms such as chest pain, breathing problems, fainting, severe bleeding or signs of stroke need urgent assessment.",
			"Emergency teams can assess and treat symptoms like these quickly.",
		}),
		KeyWhenToSeeDoctor: EmergencyWhenToSeeDoctor,
	}
}

// FallbackContent is the safe answer used when generation fails or a
// generated answer has to be blocked.
func FallbackContent() map[SectionKey]string {
	return map[SectionKey]string{
		KeySummary: Bullets([]string{
			"We could not put together detailed information for this message.",
			"A doctor, nurse or pharmacist can help you understand your symptoms.",
		}),
		KeyGeneralInformation: DefaultGeneralInformation,
		KeyWhenToSeeDoctor: Bullets([]string{
			"Contact a healthcare provider for advice about your symptoms.",
			"See a doctor if symptoms get worse, do not improve within a few days, or worry you.",
			"Seek emergency care right away for trouble breathing, chest pain, fainting or severe bleeding.",
		}),
		KeyDisclaimer: DisclaimerText,
	}
}

package safety

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/health-chat-api/internal/response"
)

func candidate(content map[response.SectionKey]string) response.Sections {
	var out response.Sections
	for _, key := range []response.SectionKey{
		response.KeySummary,
		response.KeyGeneralInformation,
		response.KeyWhatYouCanDo,
		response.KeyWhenToSeeDoctor,
		response.KeyDisclaimer,
	} {
		if body, ok := content[key]; ok {
			out = append(out, response.Section{Key: key, Title: response.Title(key), Content: body})
		}
	}
	return out
}

func TestPolicyFilter_Tags(t *testing.T) {
	f := NewPolicyFilter()
	tests := []struct {
		text string
		want Violation
	}{
		{"You have strep throat.", ViolationDiagnosis},
		{"You most likely have a sinus infection.", ViolationDiagnosis},
		{"You probably have bronchitis.", ViolationDiagnosis},
		{"This is definitely a migraine.", ViolationDiagnosis},
		{"Take ibuprofen for the pain.", ViolationMedication},
		{"I recommend amoxicillin.", ViolationMedication},
		{"Use 400 mg every evening.", ViolationDosage},
		{"Increase your dose if it does not help.", ViolationDosage},
		{"There is no need to see a doctor.", ViolationDelayCare},
		{"Avoid the emergency room for this.", ViolationDelayCare},
		{"Stop taking your medication.", ViolationDiscontinue},
		{"You will be fine in a couple of days.", ViolationPrognosis},
		{"It's nothing serious.", ViolationPrognosis},
		{"Here is your treatment plan.", ViolationSelfTreatEnabled},
		{"I think you have the flu.", ViolationDiagnosis},
		{"You've got strep throat.", ViolationDiagnosis},
		{"You’ve got strep throat.", ViolationDiagnosis},
		{"You're suffering from bronchitis.", ViolationDiagnosis},
		{"You'll be fine in a few days.", ViolationPrognosis},
		{"You'll make a full recovery.", ViolationPrognosis},
		{"I'd recommend ibuprofen.", ViolationMedication},
		{"We would suggest naproxen.", ViolationMedication},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Contains(t, f.Scan(tt.text), tt.want)
		})
	}
}

func TestPolicyFilter_ConditionalFramingIsAllowed(t *testing.T) {
	f := NewPolicyFilter()
	for _, text := range []string{
		"If you have asthma, keep your inhaler nearby.",
		"Ask a clinician whether you have an infection.",
		"Do you have a fever as well?",
		"People who have diabetes should check their feet.",
		"When you have a cold, rest can help.",
		"Do you think you have the flu?",
	} {
		assert.Empty(t, f.Scan(text), text)
	}
}

func TestPolicyFilter_CleanCandidatePassesUnchanged(t *testing.T) {
	f := NewPolicyFilter()
	in := candidate(map[response.SectionKey]string{
		response.KeySummary:            "- Runny nose and sore throat are common with viral colds.",
		response.KeyGeneralInformation: "- Most colds improve within a week to ten days.",
		response.KeyWhatYouCanDo:       "- Rest and drink fluids.\n- Warm salt-water gargles may soothe the throat.",
		response.KeyWhenToSeeDoctor:    "- See a doctor if a fever develops or symptoms last more than ten days.",
	})

	res := f.Audit(in)
	assert.True(t, res.Clean())
	assert.Empty(t, res.Violations)
	assert.Equal(t, in, res.Rewritten)
}

func TestPolicyFilter_RewritesOffendingSentences(t *testing.T) {
	f := NewPolicyFilter()
	in := candidate(map[response.SectionKey]string{
		response.KeySummary:            "- You have a cold. Colds are common.\n- Symptoms usually ease within a week.",
		response.KeyGeneralInformation: "- Viruses cause most colds.",
		response.KeyWhatYouCanDo:       "- Take ibuprofen every night.\n- Rest and drink fluids.",
		response.KeyWhenToSeeDoctor:    "- See a doctor if symptoms last more than ten days.",
	})

	res := f.Audit(in)
	require.False(t, res.Blocked)
	assert.Equal(t, []Violation{ViolationDiagnosis, ViolationMedication}, res.Violations)
	assert.Len(t, res.Findings, 2)

	summary, _ := res.Rewritten.Get(response.KeySummary)
	assert.Equal(t, "- Colds are common.\n- Symptoms usually ease within a week.", summary)
	todo, _ := res.Rewritten.Get(response.KeyWhatYouCanDo)
	assert.Equal(t, "- Rest and drink fluids.", todo)
	assert.Empty(t, f.Scan(res.Rewritten.Text()))
}

func TestPolicyFilter_EmptiedSectionGetsSubstitute(t *testing.T) {
	f := NewPolicyFilter()
	in := candidate(map[response.SectionKey]string{
		response.KeySummary:            "You have the flu.",
		response.KeyGeneralInformation: "- Flu spreads easily.",
		response.KeyWhenToSeeDoctor:    "- See a doctor if breathing gets hard.",
	})

	res := f.Audit(in)
	require.False(t, res.Blocked)
	summary, ok := res.Rewritten.Get(response.KeySummary)
	require.True(t, ok)
	assert.Equal(t, response.DefaultSummary, summary)
}

func TestPolicyFilter_BlockLevelTagsReplaceResponse(t *testing.T) {
	f := NewPolicyFilter()
	for _, bad := range []string{
		"- There is no need to see a doctor for this.",
		"- Stop taking your medication until it clears.",
		"- Don't call 911, it will pass.",
	} {
		in := candidate(map[response.SectionKey]string{
			response.KeySummary:            "- Common issue.",
			response.KeyGeneralInformation: "- General facts.",
			response.KeyWhenToSeeDoctor:    bad,
		})
		res := f.Audit(in)
		assert.True(t, res.Blocked, bad)
		assert.Equal(t, FallbackSections(), res.Rewritten)
	}
}

func TestPolicyFilter_OutputLeaksBlock(t *testing.T) {
	f := NewPolicyFilter()
	in := candidate(map[response.SectionKey]string{
		response.KeySummary:            "- My system prompt says to be brief.",
		response.KeyGeneralInformation: "- General facts.",
		response.KeyWhenToSeeDoctor:    "- See a doctor soon.",
	})
	res := f.Audit(in)
	assert.True(t, res.Blocked)
	assert.Equal(t, "leak:system_prompt_disclosure", res.BlockReason)
}

func TestPolicyFilter_AIIdentitySentenceIsDropped(t *testing.T) {
	f := NewPolicyFilter()
	in := candidate(map[response.SectionKey]string{
		response.KeySummary:            "- I am an AI. Sore throats are common.",
		response.KeyGeneralInformation: "- General facts.",
		response.KeyWhenToSeeDoctor:    "- See a doctor soon.",
	})
	res := f.Audit(in)
	require.False(t, res.Blocked)
	summary, _ := res.Rewritten.Get(response.KeySummary)
	assert.Equal(t, "- Sore throats are common.", summary)
	assert.Empty(t, res.Violations)
}

func TestPolicyFilter_CanonicalTextsAreClean(t *testing.T) {
	f := NewPolicyFilter()
	texts := []string{
		response.EmergencyWarningText,
		response.DisclaimerText,
		response.DefaultSummary,
		response.DefaultGeneralInformation,
		response.DefaultWhenToSeeDoctor,
		response.EmergencySummary,
		response.EmergencyGeneralInformation,
		response.EmergencyWhenToSeeDoctor,
		response.Reply,
	}
	for _, content := range []map[response.SectionKey]string{
		response.EmergencyContent(true),
		response.EmergencyContent(false),
		response.FallbackContent(),
	} {
		for _, body := range content {
			texts = append(texts, body)
		}
	}
	for _, sub := range sectionSubstitutes {
		texts = append(texts, sub)
	}
	for _, text := range texts {
		assert.Empty(t, f.Scan(text), text)
		assert.Empty(t, f.firstMatch(text), text)
	}
}

func TestPolicyFilter_AssembledOutputHasNoDiagnosis(t *testing.T) {
	f := NewPolicyFilter()
	inputs := []map[response.SectionKey]string{
		{response.KeySummary: "You have pneumonia.", response.KeyWhatYouCanDo: "You definitely have a cold, rest."},
		{response.KeySummary: "It is most likely a migraine. You have migraine headaches."},
		{response.KeyGeneralInformation: "Your symptoms indicate an infection."},
		{response.KeySummary: "I think you have the flu.", response.KeyGeneralInformation: "You've got strep throat."},
		{response.KeySummary: "You're suffering from bronchitis. Rest and fluids help most people."},
		{},
	}
	for _, in := range inputs {
		for _, emergency := range []bool{false, true} {
			res := f.Audit(candidate(in))
			out := response.Assemble(res.Rewritten.Map(), emergency)
			md := response.Render(out)
			assert.NotContains(t, f.Scan(md), ViolationDiagnosis, md)
			assert.NotEmpty(t, strings.TrimSpace(md))
		}
	}
}

func TestPolicyFilter_NeverPanicsOnOddInput(t *testing.T) {
	f := NewPolicyFilter()
	assert.NotPanics(t, func() {
		res := f.Audit(nil)
		assert.False(t, res.Blocked)
	})
	assert.NotPanics(t, func() {
		f.Audit(response.Sections{{Key: "unknown", Content: "...\n\n- \n!?"}})
	})
}

func TestFoldContractions(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"You've got it", "You have got it"},
		{"you’re tired", "you are tired"},
		{"We'll see", "We will see"},
		{"I'd recommend", "I would recommend"},
		{"I'm here", "I am here"},
		{"It's nothing", "It's nothing"},
		{"don't wait", "don't wait"},
		{"no contraction", "no contraction"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, foldContractions(tt.in), tt.in)
	}
}

func TestPolicyFilter_RewritesContractedDiagnosis(t *testing.T) {
	f := NewPolicyFilter()
	res := f.Audit(candidate(map[response.SectionKey]string{
		response.KeySummary:    "You've got strep throat. Sore throats are common.",
		response.KeyDisclaimer: response.DisclaimerText,
	}))

	require.False(t, res.Blocked)
	assert.Equal(t, []Violation{ViolationDiagnosis}, res.Violations)
	summary, ok := res.Rewritten.Get(response.KeySummary)
	require.True(t, ok)
	assert.Equal(t, "Sore throats are common.", summary)
}

func TestPolicyFilter_Permits(t *testing.T) {
	f := NewPolicyFilter()
	assert.True(t, f.Permits("Do you have a cough?"))
	assert.False(t, f.Permits("You'll be fine, right?"))
	assert.False(t, f.Permits("My instructions say to ask your age."))
	assert.False(t, f.Permits("Connect to postgres://admin:pw@db/prod for details."))
}

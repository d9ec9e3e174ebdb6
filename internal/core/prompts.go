package core

// prompts.go defines the extraction prompt and the canned reply texts used by
// the conversation controller. Keeping them in one file makes the wording
// easy to tweak without touching control flow.

const (
	// ExtractionSystemPrompt pins the model to bare JSON output.
	ExtractionSystemPrompt = "Return ONLY JSON. No extra text."

	// ExtractionPromptTemplate wraps the user message. The model must emit
	// medicine_name, quantity and unit.
	ExtractionPromptTemplate = `You are an expert pharmacist AI.

Extract:
- medicine_name
- quantity
- unit

Return ONLY valid JSON.
No extra explanation.

User message:
%q`

	// MsgServiceUnavailable is the fixed reply when the extraction service
	// cannot be reached. It must stay stable: the frontend matches on it.
	MsgServiceUnavailable = "Sorry, the ordering assistant is temporarily unavailable. Please try again in a moment."

	MsgReplyWithOption  = "Please reply with option number (1,2,3...)."
	MsgInvalidOption    = "Invalid option number."
	MsgChoiceExpired    = "Previous order context expired. Please enter your request again."
	MsgReplyYesNo       = "Please reply 'Yes' to confirm or 'No' to cancel."
	MsgOrderCancelled   = "Okay, order cancelled. Let me know if you need anything else."
	MsgUploadToContinue = "Please upload your prescription image, or reply 'No' to cancel."
	MsgPaymentReprompt  = "Please reply 'Paid' once the payment is complete, or 'No' to cancel."
)

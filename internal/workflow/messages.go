package workflow

// User-facing message texts. Kept in one place so transports stay free of
// workflow wording.
const (
	msgGreeting          = "👋 Hi! Send me a text message or a voice note. I'll extract the facts, write a summary, and help you file it into your Notion pages."
	msgProcessing        = "🧠 Processing text..."
	msgTranscribing      = "🎙️ Transcribing audio..."
	msgTranscribeFailed  = "Sorry, I couldn't transcribe the audio. Please try again."
	msgExtractionFailed  = "Sorry, I encountered an error processing the text with the AI."
	msgNoFacts           = "No specific facts extracted to add."
	msgFactsAdded        = "✅ Facts successfully added to Notion."
	msgFactsPartial      = "⚠️ Could not add all facts to Notion. Please check logs."
	msgNoSummary         = "No summary was generated."
	msgListingFailed     = "Sorry, I couldn't look up your Notion pages. Please try again."
	msgRequestPageName   = "Please enter the name for the new Notion page."
	msgEmptyPageName     = "Page title cannot be empty. Please provide a name."
	msgSelectionPrompt   = "Please choose a Notion page to add the summary to, or create a new one:"
	msgOutOfOrder        = "Your request might have timed out or is out of order. Please send the input again."
	msgConfirmMismatch   = "Confirmation mismatch. Please try again."
	msgPageNotFound      = "Selected page not found. Please try again."
	msgUnknownAction     = "Unknown action."
	msgStateReset        = "🔄 Bot state has been reset. Any pending actions are cancelled."
	msgInternalStateGone = "Internal error loading data. Please try again."

	// entrySeparator prefixes filed summaries so appended entries stay
	// distinguishable inside a page.
	entrySeparator = "--- AuditLife Entry ---"
)

package patterns

// Rule registrations, grouped by category. Confidence values are the raw
// match confidence before merging; checksum-verified rules override them
// through Verify.

func (r *Registry) registerPIIRules() {
	// Candidate card numbers are matched broadly (13-19 digits with optional
	// separators) and scored through the Luhn checksum. Checksum failures
	// are kept only when the candidate carries deliberate card formatting;
	// incidental digit runs are discarded.
	r.registerVerified("credit_card",
		`\b(?:\d[ -]?){12,18}\d\b`,
		CategoryPII, KindCreditCard, 0.70,
		"Payment card number (checksum-scored)",
		verifyCreditCard)

	r.register("ssn",
		`\b\d{3}[- ]\d{2}[- ]\d{4}\b`,
		CategoryPII, KindSSN, 0.88,
		"US Social Security Number")

	r.register("email",
		`\b[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}\b`,
		CategoryPII, KindEmail, 0.90,
		"Email address")

	r.register("phone_us",
		`\(?\b\d{3}\)?[-. ]\d{3}[-. ]\d{4}\b`,
		CategoryPII, KindPhone, 0.80,
		"US phone number")

	r.register("phone_intl",
		`\+\d{1,3}[- ]?\d{2,4}[- ]?\d{3,4}[- ]?\d{3,4}\b`,
		CategoryPII, KindPhone, 0.80,
		"International phone number")

	r.register("iban",
		`\b[A-Z]{2}\d{2}[A-Z0-9]{11,30}\b`,
		CategoryPII, KindIBAN, 0.85,
		"International Bank Account Number")

	r.register("ipv4",
		`\b(?:\d{1,3}\.){3}\d{1,3}\b`,
		CategoryPII, KindIPAddress, 0.82,
		"IPv4 address")
}

func (r *Registry) registerCredentialRules() {
	r.register("aws_access_key",
		`\bAKIA[0-9A-Z]{16}\b`,
		CategoryCredential, KindAPIKey, 0.95,
		"AWS access key ID")

	r.register("github_pat",
		`\bghp_[A-Za-z0-9]{36,}\b`,
		CategoryCredential, KindAPIKey, 0.95,
		"GitHub personal access token")

	r.register("stripe_key",
		`\b[sp]k_(?:live|test)_[A-Za-z0-9]{16,}\b`,
		CategoryCredential, KindAPIKey, 0.95,
		"Stripe API key")

	r.register("generic_api_key",
		`(?i)\b(?:api[_-]?key|secret[_-]?key|auth[_-]?token)["':=\s]+[A-Za-z0-9_\-]{20,}`,
		CategoryCredential, KindAPIKey, 0.82,
		"Generic API key assignment")

	r.register("jwt",
		`\beyJ[A-Za-z0-9_\-]{10,}\.[A-Za-z0-9_\-]{10,}\.[A-Za-z0-9_\-]{5,}\b`,
		CategoryCredential, KindJWT, 0.92,
		"JSON Web Token")

	r.register("private_key_block",
		`-----BEGIN (?:RSA |EC |DSA |OPENSSH )?PRIVATE KEY-----`,
		CategoryCredential, KindPrivateKey, 0.98,
		"PEM private key header")

	r.register("db_uri",
		`\b(?:postgres|postgresql|mysql|mongodb(?:\+srv)?|redis|amqp)://[^\s"']+`,
		CategoryCredential, KindDBURI, 0.90,
		"Database connection URI")
}

func (r *Registry) registerInjectionRules() {
	r.register("instruction_override",
		`(?i)(?:ignore|disregard|forget)\s+(?:all\s+|any\s+)?(?:previous|prior|above|earlier)\s+(?:instructions?|prompts?|rules?|directives?)`,
		CategoryInjection, KindInjection, 0.95,
		"Direct instruction override attempt")

	r.register("rule_dismissal",
		`(?i)(?:forget|disregard|drop)\s+(?:all\s+)?(?:your\s+)?(?:rules|guidelines|restrictions|guardrails|safety)`,
		CategoryInjection, KindInjection, 0.92,
		"Request to abandon operating rules")

	r.register("new_instructions",
		`(?i)\bnew\s+(?:instructions?|system\s+prompt)\s*:`,
		CategoryInjection, KindInjection, 0.88,
		"Inline instruction replacement")

	r.register("role_hijack",
		`(?i)you\s+are\s+now\s+(?:a\s+|an\s+)?(?:unrestricted|uncensored|unfiltered|jailbroken)`,
		CategoryInjection, KindInjection, 0.93,
		"Role hijack to an unrestricted persona")
}

func (r *Registry) registerJailbreakRules() {
	r.register("dan_mode",
		`(?i)\b(?:DAN|do\s+anything\s+now)\s+mode\b`,
		CategoryJailbreak, KindInjection, 0.92,
		"DAN-style jailbreak")

	r.register("developer_mode",
		`(?i)\b(?:enable|activate|enter)\s+developer\s+mode\b`,
		CategoryJailbreak, KindInjection, 0.90,
		"Developer mode jailbreak")

	r.register("hypothetical_bypass",
		`(?i)pretend\s+(?:that\s+)?you\s+(?:have\s+no|are\s+not\s+bound\s+by)\s+(?:restrictions|rules|guidelines)`,
		CategoryJailbreak, KindInjection, 0.90,
		"Hypothetical framing to bypass restrictions")
}

func (r *Registry) registerPromptExtractionRules() {
	r.register("prompt_probe",
		`(?i)(?:reveal|show|print|repeat|output|tell\s+me)\s+(?:me\s+)?(?:your\s+|the\s+)?(?:system\s+prompt|initial\s+instructions|hidden\s+instructions|original\s+prompt)`,
		CategoryPromptExtraction, KindInjection, 0.93,
		"System prompt extraction attempt")

	r.register("verbatim_probe",
		`(?i)repeat\s+everything\s+(?:above|before)\s+(?:this|verbatim)`,
		CategoryPromptExtraction, KindInjection, 0.90,
		"Verbatim context extraction")
}

func (r *Registry) registerSQLInjectionRules() {
	r.register("sql_tautology",
		`(?i)['"]\s*(?:or|and)\s+['"]?\d+['"]?\s*=\s*['"]?\d+`,
		CategorySQLInjection, KindInjection, 0.88,
		"SQL tautology")

	r.register("sql_drop",
		`(?i);\s*drop\s+table\b`,
		CategorySQLInjection, KindInjection, 0.92,
		"Stacked DROP TABLE")

	r.register("sql_union",
		`(?i)\bunion\s+(?:all\s+)?select\b`,
		CategorySQLInjection, KindInjection, 0.85,
		"UNION-based extraction")
}

func (r *Registry) registerCommandInjectionRules() {
	r.register("reverse_shell",
		`(?i)/dev/tcp/\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}/\d+`,
		CategoryCommandInj, KindInjection, 0.95,
		"Bash reverse shell")

	r.register("shell_chain_destructive",
		`(?i)[;&|]\s*rm\s+-rf?\s+/`,
		CategoryCommandInj, KindInjection, 0.92,
		"Chained destructive shell command")

	r.register("curl_pipe_sh",
		`(?i)\b(?:curl|wget)\s+[^\s|]+\s*\|\s*(?:ba)?sh\b`,
		CategoryCommandInj, KindInjection, 0.90,
		"Remote script piped to shell")
}

func (r *Registry) registerLeakRules() {
	r.register("system_prompt_echo",
		`(?i)(?:my|the)\s+system\s+prompt\s+(?:is|says|starts|begins)`,
		CategoryPromptLeak, KindLeak, 0.92,
		"Model echoing its system prompt")

	r.register("instruction_echo",
		`(?i)i\s+was\s+(?:instructed|told|configured)\s+(?:to|not\s+to)\b`,
		CategoryPromptLeak, KindLeak, 0.85,
		"Model paraphrasing hidden instructions")

	r.register("instruction_restate",
		`(?i)\b(?:my|the)\s+(?:instructions|guidelines|directives)\s+(?:are|say|state|tell)\b`,
		CategoryPromptLeak, KindLeak, 0.88,
		"Model restating its instructions")

	r.register("private_ipv4",
		`\b(?:10\.\d{1,3}|192\.168|172\.(?:1[6-9]|2\d|3[01]))\.\d{1,3}\.\d{1,3}\b`,
		CategoryInfraLeak, KindLeak, 0.86,
		"RFC1918 address disclosure")

	r.register("internal_hostname",
		`(?i)\b[a-z0-9\-]+\.(?:internal|corp|intranet|local)\b`,
		CategoryInfraLeak, KindLeak, 0.85,
		"Internal hostname disclosure")

	r.register("production_infra",
		`(?i)\b(?:production|prod|staging)\s+(?:database|db|server|cluster|environment)\b`,
		CategoryInfraLeak, KindLeak, 0.84,
		"Production infrastructure reference")

	r.register("internal_endpoint",
		`(?i)\binternal\s+(?:endpoint|api|service|dashboard|url)\b`,
		CategoryInfraLeak, KindLeak, 0.84,
		"Internal endpoint disclosure")

	r.register("cross_user_reference",
		`(?i)\b(?:another|other|different)\s+(?:user|customer|tenant)(?:'s)?\s+(?:data|account|order|record|conversation)`,
		CategoryCrossUser, KindLeak, 0.85,
		"Reference to a different user's data")

	r.register("prior_conversation",
		`(?i)\b(?:previous|prior|earlier)\s+(?:conversation|session|chat)\b`,
		CategoryCrossUser, KindLeak, 0.82,
		"Reference to a previous conversation")
}

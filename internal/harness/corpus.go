package harness

// Entry is one corpus text.
type Entry struct {
	Index int
	Text  string
	// Advisory is set for entries built from advice-laden base sentences.
	Advisory bool
}

// adviceBase holds sentences that carry directive, personalized or
// outcome-promising phrasing.
var adviceBase = []string{
	"You should file a lawsuit against the breaching party.",
	"In your case, the intellectual property terms may need revision.",
	"You have a strong case against your landlord.",
	"This gives you grounds to sue the contractor.",
	"You should sue the seller.",
	"You will win this case if the evidence holds.",
	"You are entitled to a full refund.",
	"I guarantee that the judge will rule for you.",
	"You must respond to the complaint within 20 days.",
	"You need to keep copies of every notice you receive.",
	"You would be wise to document every conversation.",
	"You should be aware that the deadline is strict.",
	"You should not sign anything until you review it.",
	"We recommend that you contact the other party in writing.",
	"I recommend mediation before filing.",
	"I advise you to sign the settlement.",
	"My recommendation is to wait for the written decision.",
	"Your best option is to negotiate a payment plan.",
	"The best approach is to request an extension.",
	"It is necessary that you attend the hearing.",
	"For your situation, a written notice is the first step.",
	"Based on the facts you described, the claim may be time-barred.",
	"Review your lease for an early termination clause.",
	"Your obligations under the agreement end when the term expires.",
	"This means you can withhold rent until repairs are made.",
	"Therefore you may recover court costs.",
	"As a result, you will owe late fees.",
	"The landlord should return the deposit within 30 days.",
	"The employer must pay overtime for those hours.",
	"Tenants are required to give 30 days notice.",
	"The court will require proof of service.",
	"Insist on a written receipt for every payment.",
	"The tenant can demand repairs in writing.",
	"You have to pay the filing fee before the hearing, and the clerk requires exact change.",
	"In your situation, you should insist on the terms of your agreement.",
	"My advice is to accept the offer, because you have a good case.",
	"It is essential for you to keep the original receipts.",
	"You ought to keep copies of every invoice.",
	"Your liability is limited to the deposit amount, so you must not ignore the notice.",
	"The buyer insisted that the price was fixed, and the seller demanded payment.",
	"You are required to disclose the defect to buyers.",
	"I would advise caution before you sign your contract.",
}

// safeBase holds informational sentences the pipeline must leave alone.
var safeBase = []string{
	"What is my deadline?",
	"The filing fee in small claims court is usually between $30 and $75.",
	"A summons is the document that notifies a party of a lawsuit.",
	"Most states allow 30 days to respond to a complaint.",
	"Mediation is a process where a neutral person helps parties reach agreement.",
	"A security deposit is money held by a landlord during a lease.",
	"The statute of frauds covers certain contracts, such as real estate sales.",
	"Court hours are typically 8:30 a.m. to 4:30 p.m. on weekdays.",
	"An answer is a written response to a complaint.",
	"Some disputes are resolved through arbitration instead of a trial.",
	"This should be noted in the case file.",
	"A demand letter sets out what one party is asking the other to do.",
	"Small claims limits vary by state, often from $2,500 to $25,000.",
}

// framings wrap base sentences so that each cycle over the base set yields
// new texts with the same advisory content.
var framings = []struct {
	prefix string
	suffix string
}{
	{"", ""},
	{"Here is some general information. ", ""},
	{"", " Procedures differ between courts."},
	{"Quick summary: ", " Details depend on local rules."},
	{"", "\n\n- Keep a copy of every filing.\n- Note each court date."},
	{"**Overview.** ", ""},
}

// BuildCorpus returns size entries expanded cyclically from the base
// sentences. Entry i is base sentence i mod |base| under framing
// (i / |base|) mod |framings|, so the same size always yields the same
// corpus.
func BuildCorpus(size int) []Entry {
	base := make([]string, 0, len(adviceBase)+len(safeBase))
	base = append(base, adviceBase...)
	base = append(base, safeBase...)

	out := make([]Entry, size)
	for i := range out {
		f := framings[(i/len(base))%len(framings)]
		b := i % len(base)
		out[i] = Entry{
			Index:    i,
			Text:     f.prefix + base[b] + f.suffix,
			Advisory: b < len(adviceBase),
		}
	}
	return out
}

// BaseSize is the number of distinct base sentences.
func BaseSize() int {
	return len(adviceBase) + len(safeBase)
}

package classify

import "finsync/internal/core"

// CategoryUncategorized is the system category applied when no signal
// clears the low-confidence band.
const CategoryUncategorized = "uncategorized"

// categoryKeywords binds a ledger category to the keyword set that votes
// for it. Keywords are stored pre-normalized (lowercase, no punctuation)
// so they can be matched against normalized narration text directly.
// The table is an ordered slice, not a map: scoring walks every
// entry and picks the best score with an explicit tie-break, so iteration
// order can never change the result.
type categoryKeywords struct {
	categoryID string
	txType     core.TransactionType
	keywords   []string
}

var keywordTable = []categoryKeywords{
	{
		categoryID: "food_dining",
		txType:     core.Expense,
		keywords: []string{
			"restaurant", "kfc", "pizza", "burger", "chicken republic",
			"papaye", "cafe", "coffee", "bakery", "food", "eatery", "chop bar",
		},
	},
	{
		categoryID: "groceries",
		txType:     core.Expense,
		keywords: []string{
			"supermarket", "shoprite", "melcom", "market", "grocery",
			"maxmart", "palace mall", "provisions",
		},
	},
	{
		categoryID: "transport",
		txType:     core.Expense,
		keywords: []string{
			"uber", "bolt", "yango", "taxi", "trotro", "fuel", "petrol",
			"goil", "shell", "total energies", "parking", "bus fare",
		},
	},
	{
		categoryID: "utilities",
		txType:     core.Expense,
		keywords: []string{
			"ecg", "electricity", "water bill", "gwcl", "dstv", "gotv",
			"internet", "wifi", "postpaid", "prepaid meter",
		},
	},
	{
		categoryID: "airtime_data",
		txType:     core.Expense,
		keywords: []string{
			"airtime", "data bundle", "mtn", "vodafone", "airteltigo",
			"telecel", "recharge", "top up", "topup",
		},
	},
	{
		categoryID: "rent_housing",
		txType:     core.Expense,
		keywords: []string{
			"rent", "landlord", "mortgage", "estate", "hostel fee",
		},
	},
	{
		categoryID: "health",
		txType:     core.Expense,
		keywords: []string{
			"pharmacy", "hospital", "clinic", "nhis", "drug", "medical",
			"lab test", "dental",
		},
	},
	{
		categoryID: "shopping",
		txType:     core.Expense,
		keywords: []string{
			"jumia", "amazon", "boutique", "clothing", "electronics",
			"shopping", "store purchase",
		},
	},
	{
		categoryID: "entertainment",
		txType:     core.Expense,
		keywords: []string{
			"netflix", "spotify", "showmax", "cinema", "silverbird",
			"betway", "tickets", "game",
		},
	},
	{
		categoryID: "fees_charges",
		txType:     core.Expense,
		keywords: []string{
			"e levy", "elevy", "commission", "service charge", "bank charge",
			"maintenance fee", "sms charge", "withdrawal fee",
		},
	},
	{
		categoryID: "income_salary",
		txType:     core.Income,
		keywords: []string{
			"salary", "payroll", "wages", "stipend", "allowance payment",
		},
	},
	{
		categoryID: "transfers",
		txType:     core.Income,
		keywords: []string{
			"transfer from", "received from", "momo received", "cash in",
			"deposit", "remittance",
		},
	},
}

// momoAffinity lists categories that get a platform-hint bonus when the
// record comes from the mobile-money platform, where airtime purchases and
// wallet transfers dominate the narration space.
var momoAffinity = map[string]bool{
	"airtime_data": true,
	"transfers":    true,
	"fees_charges": true,
}

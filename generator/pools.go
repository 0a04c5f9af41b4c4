package generator

import (
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/gomlx/piispans/schema"
)

// ValueFunc draws a canonical (un-noised) entity value.
type ValueFunc func(rng *rand.Rand) string

// Pools are the vocabularies entity values are drawn from.
type Pools struct {
	FirstNames   []string
	LastNames    []string
	Cities       []string
	Locations    []string
	EmailDomains []string
	TLDs         []string
}

// DefaultPools are lowercase, as a speech-to-text system would transcribe them.
var DefaultPools = Pools{
	FirstNames: []string{
		"ramesh", "priya", "john", "sarah", "kumar", "ravi", "isha", "amit",
		"nikita", "arjun", "divya", "rohit", "neha", "raj", "pooja", "anil",
		"maya", "david", "emma", "sophia", "james", "michael", "anna", "laura",
		"vikram", "ananya", "sanjay", "meera", "vikas", "sneha",
	},
	LastNames: []string{
		"sharma", "patel", "singh", "kumar", "reddy", "gupta", "brown", "smith",
		"johnson", "williams", "jones", "miller", "davis", "wilson", "moore",
		"taylor", "anderson", "thomas", "jackson", "white", "khanna", "desai",
		"verma", "misra", "chopra", "nair", "iyer",
	},
	Cities: []string{
		"mumbai", "delhi", "bangalore", "hyderabad", "pune", "kolkata",
		"houston", "new york", "san francisco", "seattle", "boston", "london",
		"paris", "dubai", "singapore", "tokyo", "sydney", "toronto", "chicago",
		"chennai", "ahmedabad", "chandigarh", "lucknow", "jaipur",
	},
	Locations: []string{
		"india", "united states", "united kingdom", "france", "germany",
		"japan", "canada", "australia", "brazil", "mexico", "california",
		"texas", "florida", "new york", "alaska", "hawaii", "scotland",
		"ireland", "new zealand", "south africa", "europe", "asia",
	},
	EmailDomains: []string{
		"gmail", "yahoo", "hotmail", "outlook", "microsoft", "apple",
		"google", "facebook", "amazon", "netflix", "uber", "airbnb",
	},
	TLDs: []string{"com", "org", "net", "edu", "co", "in"},
}

func pick(rng *rand.Rand, list []string) string {
	return list[rng.IntN(len(list))]
}

func digits(rng *rand.Rand, n int) string {
	var sb strings.Builder
	for range n {
		sb.WriteByte(byte('0' + rng.IntN(10)))
	}
	return sb.String()
}

// ValueFuncs returns the value generators for the default entity types, drawing from the pools.
//
// Numbers and dates are produced in written form ("5551234567", "2024-03-14"); the noise
// transforms turn them into their spoken form.
func (p Pools) ValueFuncs() map[schema.EntityType]ValueFunc {
	return map[schema.EntityType]ValueFunc{
		schema.PersonName: func(rng *rand.Rand) string {
			return pick(rng, p.FirstNames) + " " + pick(rng, p.LastNames)
		},
		schema.Email: func(rng *rand.Rand) string {
			return pick(rng, p.FirstNames) + "@" + pick(rng, p.EmailDomains) + "." + pick(rng, p.TLDs)
		},
		schema.Phone:      func(rng *rand.Rand) string { return digits(rng, 10) },
		schema.CreditCard: func(rng *rand.Rand) string { return digits(rng, 16) },
		schema.Date: func(rng *rand.Rand) string {
			return fmt.Sprintf("%04d-%02d-%02d", 2015+rng.IntN(10), 1+rng.IntN(12), 1+rng.IntN(28))
		},
		schema.City:     func(rng *rand.Rand) string { return pick(rng, p.Cities) },
		schema.Location: func(rng *rand.Rand) string { return pick(rng, p.Locations) },
	}
}

// DefaultTemplates are utterance templates with {TYPE} placeholders.
var DefaultTemplates = []string{
	"contact me at {EMAIL} or {PHONE}",
	"my name is {PERSON_NAME} and i work in {LOCATION}",
	"the credit card number is {CREDIT_CARD}",
	"send payment to {EMAIL} from city {CITY}",
	"call me at {PHONE} or email {EMAIL}",
	"my card {CREDIT_CARD} expires on {DATE}",
	"i live in {CITY} which is in {LOCATION}",
	"{PERSON_NAME} from {LOCATION} can be reached at {PHONE}",
	"the event is on {DATE} in {LOCATION}",
	"charged to card {CREDIT_CARD} from {CITY}",
	"my email is {EMAIL} and phone is {PHONE}",
	"{PERSON_NAME} works in {CITY}",
	"visit us in {LOCATION} or call {PHONE}",
	"meeting date is {DATE} with {PERSON_NAME}",
	"bill to {CREDIT_CARD} at {CITY}",
	"hi, this is {PERSON_NAME}, calling from {CITY}.",
	"ok so the number is {PHONE}, thanks.",
}

package generate

import "vowpact/internal/contract"

// Section is one clause group of a generated contract.
type Section struct {
	Key         string
	Heading     string
	Instruction string
}

var (
	sectionServices = Section{
		Key:         "services",
		Heading:     "Services",
		Instruction: "Describe the services the vendor will provide, referencing the line items, event date and venue.",
	}
	sectionPayment = Section{
		Key:         "payment",
		Heading:     "Fees and Payment",
		Instruction: "State the total fee, the deposit required to reserve the date, and when the remaining balance is due.",
	}
	sectionCancellation = Section{
		Key:         "cancellation",
		Heading:     "Cancellation and Rescheduling",
		Instruction: "Explain what happens to the deposit and balance if the client cancels or moves the date.",
	}
	sectionLiability = Section{
		Key:         "liability",
		Heading:     "Limitation of Liability",
		Instruction: "Limit the vendor's liability to the amounts paid under the agreement.",
	}
	sectionForceMajeure = Section{
		Key:         "force_majeure",
		Heading:     "Force Majeure",
		Instruction: "Excuse both parties for failures caused by events outside their reasonable control.",
	}

	vendorSections = map[contract.VendorType][]Section{
		contract.VendorPhotographer: {{
			Key:         "usage_rights",
			Heading:     "Image Ownership and Usage",
			Instruction: "The photographer keeps copyright; the client receives a personal-use license. The photographer may use images for portfolio and marketing.",
		}, {
			Key:         "delivery",
			Heading:     "Delivery of Images",
			Instruction: "State the expected delivery window and format of edited images.",
		}},
		contract.VendorCaterer: {{
			Key:         "headcount",
			Heading:     "Final Headcount",
			Instruction: "Require a final guest count before the event and explain how changes affect the fee.",
		}, {
			Key:         "food_safety",
			Heading:     "Food Safety and Allergies",
			Instruction: "Cover allergen disclosure, food handling standards, and leftover food policy.",
		}},
		contract.VendorFlorist: {{
			Key:         "substitutions",
			Heading:     "Seasonal Substitutions",
			Instruction: "Allow substitution of flowers of equal or greater value when items are unavailable.",
		}},
		contract.VendorVenue: {{
			Key:         "venue_rules",
			Heading:     "Venue Rules and Access",
			Instruction: "Cover access times, decoration restrictions, noise curfew and cleanup.",
		}},
		contract.VendorMusic: {{
			Key:         "performance",
			Heading:     "Performance and Equipment",
			Instruction: "Cover set length, breaks, power requirements and song requests.",
		}},
		contract.VendorBaker: {{
			Key:         "design",
			Heading:     "Cake Design and Transport",
			Instruction: "Cover design approval, delivery, setup and responsibility after setup.",
		}},
		contract.VendorPlanner: {{
			Key:         "coordination",
			Heading:     "Coordination Scope",
			Instruction: "Describe planning meetings, vendor coordination and day-of responsibilities.",
		}},
	}
)

// SectionsFor returns the sections generated for a vendor type, in document
// order.
func SectionsFor(v contract.VendorType) []Section {
	out := []Section{sectionServices}
	out = append(out, vendorSections[v]...)
	return append(out, sectionPayment, sectionCancellation, sectionLiability, sectionForceMajeure)
}

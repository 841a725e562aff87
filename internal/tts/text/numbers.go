package text

import (
	"strconv"
	"strings"
)

var (
	onesWords = []string{
		"zero", "one", "two", "three", "four", "five", "six", "seven", "eight", "nine",
		"ten", "eleven", "twelve", "thirteen", "fourteen", "fifteen", "sixteen",
		"seventeen", "eighteen", "nineteen",
	}
	tensWords = []string{
		"", "", "twenty", "thirty", "forty", "fifty", "sixty", "seventy", "eighty", "ninety",
	}
	scaleWords = []struct {
		value int
		word  string
	}{
		{1_000_000, "million"},
		{1_000, "thousand"},
	}
)

// numberToWords spells out an integer or a decimal like "3.14". Out-of-range
// values are returned unchanged.
func numberToWords(digits string) string {
	whole, fraction, hasFraction := strings.Cut(strings.ReplaceAll(digits, ",", ""), ".")

	number, err := strconv.Atoi(whole)
	if err != nil || number > MaxNumberForWords {
		return digits
	}

	words := IntegerToWords(number)
	if !hasFraction {
		return words
	}

	spoken := make([]string, 0, len(fraction)+2)
	spoken = append(spoken, words, "point")

	for _, digit := range fraction {
		spoken = append(spoken, onesWords[digit-'0'])
	}

	return strings.Join(spoken, " ")
}

// IntegerToWords converts 0 <= number <= MaxNumberForWords into English words.
func IntegerToWords(number int) string {
	if number < 0 || number > MaxNumberForWords {
		return strconv.Itoa(number)
	}

	if number == 0 {
		return onesWords[0]
	}

	var parts []string

	for _, scale := range scaleWords {
		if number >= scale.value {
			parts = append(parts, underThousand(number/scale.value), scale.word)
			number %= scale.value
		}
	}

	if number > 0 {
		parts = append(parts, underThousand(number))
	}

	return strings.Join(parts, " ")
}

func underThousand(number int) string {
	var parts []string

	if number >= 100 {
		parts = append(parts, onesWords[number/100], "hundred")
		number %= 100
	}

	switch {
	case number == 0:
	case number < 20:
		parts = append(parts, onesWords[number])
	case number%10 == 0:
		parts = append(parts, tensWords[number/10])
	default:
		parts = append(parts, tensWords[number/10]+"-"+onesWords[number%10])
	}

	return strings.Join(parts, " ")
}

// Package validation содержит проверки входных данных регистрации.
package validation

// IsValidPhone проверяет номер телефона: опциональный ведущий "+",
// далее только цифры, от 7 до 15 знаков (E.164).
func IsValidPhone(phone string) bool {
	if phone == "" {
		return false
	}

	digits := phone
	if digits[0] == '+' {
		digits = digits[1:]
	}

	if len(digits) < 7 || len(digits) > 15 {
		return false
	}

	for _, r := range digits {
		if r < '0' || r > '9' {
			return false
		}
	}

	return true
}

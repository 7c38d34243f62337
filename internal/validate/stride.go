package validate

// NextPrime returns the smallest prime >= n.
func NextPrime(n int) int {
	if n <= 2 {
		return 2
	}
	if n%2 == 0 {
		n++
	}
	for ; ; n += 2 {
		if isPrime(n) {
			return n
		}
	}
}

func isPrime(n int) bool {
	if n < 2 {
		return false
	}
	if n%2 == 0 {
		return n == 2
	}
	for d := 3; d*d <= n; d += 2 {
		if n%d == 0 {
			return false
		}
	}
	return true
}

// ValidationStride picks the sampling step for a tensor. A budget that is
// non-positive or covers every logical element validates densely; otherwise
// the step is prime so samples do not line up with the tensor's strides.
func ValidationStride(budget, logical, allocated int) int {
	if budget > 0 && budget < logical {
		return NextPrime(allocated / budget)
	}
	return 1
}

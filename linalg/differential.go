package linalg

// RotationDifferential returns δR, the change of the polar rotation R of
// F = R·S induced by a perturbation δF.
//
// W = Rᵀ·δR is skew-symmetric and satisfies W·S + S·W = Rᵀ·δF − δFᵀ·R. Its
// three free entries solve a symmetric 3×3 system built from S; the result
// is δR = R·W. ok is false when the system is singular, which happens only
// when two singular values of F are both zero.
func RotationDifferential(r, s, dF Mat3) (Mat3, bool) {
	k := r.T().Mul(dF).Sub(dF.T().Mul(r))

	a := Mat3{
		{s[0][0] + s[1][1], s[1][2], -s[0][2]},
		{s[1][2], s[0][0] + s[2][2], s[0][1]},
		{-s[0][2], s[0][1], s[1][1] + s[2][2]},
	}
	inv, ok := a.Inverse()
	if !ok {
		return Mat3{}, false
	}
	x := inv.MulVec(vec(k[1][0], k[2][0], k[2][1]))

	w := Mat3{
		{0, -x.X, -x.Y},
		{x.X, 0, -x.Z},
		{x.Y, x.Z, 0},
	}
	return r.Mul(w), true
}

// CofactorDifferential returns δ cof(F) for a perturbation δF.
//
// Every entry of the cofactor matrix is a quadratic form in F, so each entry
// of its differential is the Frobenius product of δF with a sparse basis
// matrix assembled from the entries of F.
func CofactorDifferential(f, dF Mat3) Mat3 {
	var dc Mat3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			dc[i][j] = Ddot(cofactorBasis(f, i, j), dF)
		}
	}
	return dc
}

// cofactorBasis returns B such that δ cof(F)_ij = B : δF.
func cofactorBasis(f Mat3, i, j int) Mat3 {
	i1, i2 := (i+1)%3, (i+2)%3
	j1, j2 := (j+1)%3, (j+2)%3

	var b Mat3
	b[i1][j1] = f[i2][j2]
	b[i2][j2] = f[i1][j1]
	b[i1][j2] = -f[i2][j1]
	b[i2][j1] = -f[i1][j2]
	return b
}

// DeterminantDifferential returns δ det(F) = cof(F) : δF.
func DeterminantDifferential(cof, dF Mat3) float64 {
	return Ddot(cof, dF)
}

package product

// NextAverage folds rating into a running mean over count earlier ratings.
// A nil average means nothing has been rated yet.
func NextAverage(current *float64, count int64, rating float64) float64 {
	if current == nil || count <= 0 {
		return rating
	}
	return (*current*float64(count) + rating) / float64(count+1)
}

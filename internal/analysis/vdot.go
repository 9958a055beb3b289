package analysis

import "math"

const vdotColumns = 6

// vdotDistances are the table columns in metres, shortest first.
var vdotDistances = [vdotColumns]float64{1500, Distance1Mile, Distance5K, Distance10K, DistanceHalfMara, DistanceMarathon}

// vdotRow holds the Daniels equivalent times in seconds for one VDOT, one per
// entry of vdotDistances.
type vdotRow struct {
	vdot  float64
	times [vdotColumns]float64
}

// vdotTable runs from VDOT 30 to 85. Times fall as VDOT rises.
var vdotTable = [...]vdotRow{
	{30, [vdotColumns]float64{510, 552, 1860, 3876, 8388, 17496}},
	{31, [vdotColumns]float64{496, 536, 1806, 3762, 8136, 16980}},
	{32, [vdotColumns]float64{482, 521, 1752, 3654, 7896, 16488}},
	{33, [vdotColumns]float64{469, 507, 1704, 3552, 7674, 16020}},
	{34, [vdotColumns]float64{457, 494, 1656, 3450, 7458, 15570}},
	{35, [vdotColumns]float64{445, 481, 1614, 3360, 7254, 15138}},
	{36, [vdotColumns]float64{434, 469, 1572, 3270, 7062, 14730}},
	{37, [vdotColumns]float64{423, 457, 1530, 3186, 6876, 14334}},
	{38, [vdotColumns]float64{413, 446, 1494, 3102, 6702, 13956}},
	{39, [vdotColumns]float64{403, 435, 1458, 3024, 6534, 13596}},
	{40, [vdotColumns]float64{394, 425, 1422, 2952, 6372, 13248}},
	{41, [vdotColumns]float64{385, 416, 1392, 2880, 6222, 12918}},
	{42, [vdotColumns]float64{376, 406, 1356, 2814, 6078, 12600}},
	{43, [vdotColumns]float64{368, 398, 1326, 2748, 5940, 12300}},
	{44, [vdotColumns]float64{360, 389, 1296, 2688, 5802, 12006}},
	{45, [vdotColumns]float64{352, 381, 1266, 2628, 5676, 11730}},
	{46, [vdotColumns]float64{345, 373, 1242, 2568, 5550, 11460}},
	{47, [vdotColumns]float64{338, 365, 1212, 2514, 5430, 11202}},
	{48, [vdotColumns]float64{331, 358, 1188, 2460, 5316, 10956}},
	{49, [vdotColumns]float64{324, 351, 1164, 2412, 5208, 10722}},
	{50, [vdotColumns]float64{318, 344, 1140, 2364, 5100, 10494}},
	{51, [vdotColumns]float64{312, 337, 1116, 2316, 4998, 10278}},
	{52, [vdotColumns]float64{306, 331, 1098, 2274, 4902, 10068}},
	{53, [vdotColumns]float64{300, 325, 1074, 2232, 4806, 9870}},
	{54, [vdotColumns]float64{295, 319, 1056, 2190, 4716, 9678}},
	{55, [vdotColumns]float64{290, 313, 1038, 2154, 4632, 9492}},
	{56, [vdotColumns]float64{285, 308, 1020, 2112, 4548, 9312}},
	{57, [vdotColumns]float64{280, 302, 1002, 2076, 4470, 9144}},
	{58, [vdotColumns]float64{275, 297, 984, 2040, 4392, 8976}},
	{59, [vdotColumns]float64{270, 292, 972, 2010, 4320, 8820}},
	{60, [vdotColumns]float64{266, 288, 954, 1974, 4248, 8664}},
	{61, [vdotColumns]float64{262, 283, 942, 1944, 4182, 8520}},
	{62, [vdotColumns]float64{258, 279, 924, 1914, 4116, 8376}},
	{63, [vdotColumns]float64{254, 274, 912, 1884, 4050, 8238}},
	{64, [vdotColumns]float64{250, 270, 900, 1860, 3990, 8106}},
	{65, [vdotColumns]float64{246, 266, 888, 1830, 3930, 7980}},
	{66, [vdotColumns]float64{242, 262, 876, 1806, 3876, 7860}},
	{67, [vdotColumns]float64{239, 258, 864, 1782, 3822, 7740}},
	{68, [vdotColumns]float64{235, 254, 852, 1758, 3768, 7626}},
	{69, [vdotColumns]float64{232, 251, 840, 1734, 3720, 7518}},
	{70, [vdotColumns]float64{229, 247, 834, 1716, 3672, 7410}},
	{71, [vdotColumns]float64{226, 244, 822, 1692, 3624, 7308}},
	{72, [vdotColumns]float64{223, 241, 810, 1674, 3582, 7212}},
	{73, [vdotColumns]float64{220, 238, 804, 1656, 3540, 7116}},
	{74, [vdotColumns]float64{217, 235, 792, 1632, 3498, 7026}},
	{75, [vdotColumns]float64{214, 232, 786, 1614, 3456, 6936}},
	{76, [vdotColumns]float64{212, 229, 774, 1596, 3420, 6852}},
	{77, [vdotColumns]float64{209, 226, 768, 1578, 3384, 6768}},
	{78, [vdotColumns]float64{206, 223, 756, 1560, 3348, 6690}},
	{79, [vdotColumns]float64{204, 221, 750, 1548, 3312, 6612}},
	{80, [vdotColumns]float64{201, 218, 744, 1530, 3282, 6540}},
	{81, [vdotColumns]float64{199, 215, 738, 1518, 3246, 6468}},
	{82, [vdotColumns]float64{197, 213, 726, 1500, 3216, 6396}},
	{83, [vdotColumns]float64{194, 210, 720, 1488, 3186, 6330}},
	{84, [vdotColumns]float64{192, 208, 714, 1470, 3156, 6264}},
	{85, [vdotColumns]float64{190, 206, 708, 1458, 3126, 6198}},
}

// CalculateVDOT derives VDOT from a performance over any distance. Times
// outside the table clamp to its ends; the result is rounded to 0.1.
func CalculateVDOT(distanceMeters, durationSeconds float64) float64 {
	if durationSeconds <= 0 || distanceMeters <= 0 {
		return 0
	}

	last := len(vdotTable) - 1
	if durationSeconds >= vdotTable[0].timeFor(distanceMeters) {
		return vdotTable[0].vdot
	}
	if durationSeconds <= vdotTable[last].timeFor(distanceMeters) {
		return vdotTable[last].vdot
	}

	// first row at least as fast as the performance
	hi := 1
	for hi < last && vdotTable[hi].timeFor(distanceMeters) > durationSeconds {
		hi++
	}
	lo := hi - 1
	slow, fast := vdotTable[lo].timeFor(distanceMeters), vdotTable[hi].timeFor(distanceMeters)
	if slow == fast {
		return vdotTable[lo].vdot
	}

	vdot := vdotTable[lo].vdot + (slow-durationSeconds)/(slow-fast)*(vdotTable[hi].vdot-vdotTable[lo].vdot)
	return math.Round(vdot*10) / 10
}

// PredictTime returns the equivalent time in seconds over a distance for a
// VDOT, interpolating linearly between table rows.
func PredictTime(vdot, targetDistanceMeters float64) float64 {
	if vdot <= 0 || targetDistanceMeters <= 0 {
		return 0
	}

	last := len(vdotTable) - 1
	if vdot <= vdotTable[0].vdot {
		return vdotTable[0].timeFor(targetDistanceMeters)
	}
	if vdot >= vdotTable[last].vdot {
		return vdotTable[last].timeFor(targetDistanceMeters)
	}

	hi := 1
	for vdotTable[hi].vdot < vdot {
		hi++
	}
	lo := vdotTable[hi-1]
	frac := (vdot - lo.vdot) / (vdotTable[hi].vdot - lo.vdot)
	slow := lo.timeFor(targetDistanceMeters)
	return slow + frac*(vdotTable[hi].timeFor(targetDistanceMeters)-slow)
}

// timeFor interpolates the row in log-log space between the two columns that
// bracket distance, extrapolating from the end columns outside them.
func (r vdotRow) timeFor(distance float64) float64 {
	i := 1
	for i < vdotColumns-1 && vdotDistances[i] < distance {
		i++
	}
	d0, d1 := vdotDistances[i-1], vdotDistances[i]
	t0, t1 := r.times[i-1], r.times[i]
	w := math.Log(distance/d0) / math.Log(d1/d0)
	return math.Exp(math.Log(t0) + w*math.Log(t1/t0))
}

// GetVDOTLabel returns a human-readable fitness level for a VDOT value
func GetVDOTLabel(vdot float64) string {
	switch {
	case vdot >= 75:
		return "Elite"
	case vdot >= 65:
		return "Highly Competitive"
	case vdot >= 55:
		return "Competitive"
	case vdot >= 45:
		return "Advanced Recreational"
	case vdot >= 38:
		return "Intermediate"
	case vdot >= 30:
		return "Beginner"
	default:
		return "Novice"
	}
}

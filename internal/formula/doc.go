// Package formula implements the deterministic name-to-visual-encoding
// transforms.
//
// Each base formula reads a fixed set of feature keys. A missing key falls
// back to the estimate derived from the name itself where one exists
// (length, syllables, vowel ratio, letter entropy, rare-letter ratio,
// repetition) and to a neutral constant otherwise.
//
//	phonetic       syllables, vowel_ratio, harshness, softness
//	               -> hue, angular_vs_curved, complexity, glow_intensity
//	semantic       sentiment, memorability, power, abstractness
//	               -> hue, saturation, brightness, palette_family
//	structural     length, syllables, consonant_clusters, symmetry_score
//	               -> shape_type, symmetry, complexity, pattern_density, x, y
//	frequency      letter_entropy, rare_letter_ratio, repetition, uniqueness
//	               -> fractal_dimension, pattern_density, brightness, rotation
//	numerological  letter sum (a=1..z=26), digital root, length
//	               -> hue (modular), rotation, shape_type, z
//	hybrid         weighted blend of the five above; the vector is five
//	               sub-weights followed by each base formula's parameters
//
// Every other field of an encoding is still populated by each formula so that
// all of them produce complete encodings; the assignments above are the
// primary drivers scaled by the tunable parameters.
package formula

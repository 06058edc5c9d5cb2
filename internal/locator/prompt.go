package locator

// Prompt is sent with every image. The shape it asks for is the one
// analysis.Extract requires.
const Prompt = `You are an expert in photo geolocation. Study the attached photograph and work out where it was taken.

Look for concrete evidence first: written signs and their language, licence plates, road markings, architecture, vegetation, landmarks, terrain and climate.

Respond with a single JSON object and nothing else:
{
  "location": {
    "city": "best guess city",
    "country": "country",
    "lat": latitude as a number between -90 and 90,
    "lng": longitude as a number between -180 and 180,
    "confidence": integer 0-100
  },
  "analysis": {
    "description": "what the photo shows",
    "clues": ["each specific clue you relied on, most important first"],
    "reasoning": "how the clues lead to this location"
  }
}

If you cannot tell, say so in the reasoning and give a low confidence rather than inventing detail.`

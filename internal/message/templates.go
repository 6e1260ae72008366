package message

// bank holds three offline templates per mood. {mood} is replaced with the
// capitalized mood, {extra} with the acknowledgment and quote clauses.
var bank = map[string][]string{
	"denial": {
		"It sounds like part of you is keeping the full weight of this at a distance for now, and that is a way of coping. {extra} There is no rush. What feels most real and steady to hold onto in the next hour?",
		"Sometimes the mind gives us a little padding when things are too big to take in at once. {extra} A small anchor can help: your feet on the floor, a glass of water, three things you can see. Which one could you try now?",
		"Not being ready to accept something does not mean you are doing it wrong. {extra} Today can be about getting your bearings gently. Would stepping outside for a moment or opening a window feel possible?",
	},
	"anger": {
		"There is a lot of energy in this anger, and often it is protecting something that matters to you. {extra} It deserves room without having to steer everything. What could safely let a little of it out: a walk, words on a page, a slow breath?",
		"It makes sense to feel angry about something that felt unfair. {extra} Pausing is not the same as staying quiet; it gives you more options. Could you unclench your jaw, drop your shoulders, breathe slowly, and then name one need?",
		"Part of you wants to act and part of you may need looking after. {extra} Both can be honored. What is one small, concrete step that respects your anger and also takes care of you?",
	},
	"bargaining": {
		"The \"if only\" thoughts can be your care looking for a way through. {extra} You made the best choices you could with what you knew at the time. What is one thing within reach today?",
		"It sounds like your mind is searching for a deal that would soften the hurt. {extra} Try moving gently from what-if toward what you can influence. If you wrote the what-ifs down, which part could you affect now?",
		"Part of you hopes that changing the story could change the feeling, and that hope matters. {extra} To meet today as it is, what small commitment would help: a timer, a message, a first step for tomorrow?",
	},
	"depression": {
		"This heaviness asks for softness and smaller steps. {extra} Let the day shrink to one small act of care, like water, a warm drink, or some fresh air. If you picked just one, which feels kindest?",
		"It is hard to move when your energy is this low. {extra} Borrow a little structure: a five minute timer, any tiny task, then rest. Could the easiest thing, like a text or a stretch, be possible?",
		"You do not have to carry this by yourself. {extra} Reaching out, even with a short message to someone or a local helpline, can make a difference. Who might you contact, or what number could you keep close?",
	},
	"acceptance": {
		"Acceptance is not the same as approval; it is noticing what is with some steadiness. {extra} From here, one kind next step is enough. What small choice would support you today?",
		"You are meeting what is real with honesty and care. {extra} Consider thanking yourself for one thing you did to get here, however small. What would you like to keep doing?",
		"Growth from a grounded place can be gentle and real. {extra} Keep one thing that works, and let go of one small thing that does not. If you chose one of each, what would they be?",
	},
}
